package syncer

import "time"

// IsPrunable reports whether an event has already started. Events starting exactly
// at now are kept; the store's delete uses the same strict comparison.
func IsPrunable(commence, now time.Time) bool {
	return commence.Before(now)
}
