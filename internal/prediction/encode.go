package prediction

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"oddsline/ingestion/internal/models"
)

// EncodeEvent renders an event tree in a compact indented form for the prompt.
// Objects are "key: value" lines, nested lists are "- " items and outcomes are
// a table with a {name,price,point} header. Nothing in the tree is dropped.
func EncodeEvent(e *models.OddsEvent) string {
	var sb strings.Builder

	field(&sb, 0, "id", e.ID)
	field(&sb, 0, "sportKey", e.SportKey)
	field(&sb, 0, "sportTitle", e.SportTitle)
	field(&sb, 0, "commenceTime", formatTime(e.CommenceTime))
	field(&sb, 0, "homeTeam", e.HomeTeam)
	field(&sb, 0, "awayTeam", e.AwayTeam)

	fmt.Fprintf(&sb, "bookmakers[%d]:\n", len(e.Bookmakers))
	for _, b := range e.Bookmakers {
		item(&sb, 1, "key", b.Key)
		field(&sb, 2, "title", b.Title)
		field(&sb, 2, "lastUpdate", formatTime(b.LastUpdate))

		indent(&sb, 2)
		fmt.Fprintf(&sb, "markets[%d]:\n", len(b.Markets))
		for _, m := range b.Markets {
			item(&sb, 3, "key", m.Key)
			field(&sb, 4, "lastUpdate", formatTime(m.LastUpdate))

			indent(&sb, 4)
			fmt.Fprintf(&sb, "outcomes[%d]{name,price,point}:\n", len(m.Outcomes))
			for _, o := range m.Outcomes {
				indent(&sb, 5)
				sb.WriteString(quote(o.Name))
				sb.WriteByte(',')
				sb.WriteString(strconv.Itoa(o.Price))
				sb.WriteByte(',')
				if o.Point.Valid {
					sb.WriteString(o.Point.Decimal.String())
				}
				sb.WriteByte('\n')
			}
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

func indent(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
}

func field(sb *strings.Builder, depth int, key, value string) {
	indent(sb, depth)
	sb.WriteString(key)
	sb.WriteString(": ")
	sb.WriteString(quote(value))
	sb.WriteByte('\n')
}

// item starts a list element; following fields sit one level deeper
func item(sb *strings.Builder, depth int, key, value string) {
	indent(sb, depth)
	sb.WriteString("- ")
	sb.WriteString(key)
	sb.WriteString(": ")
	sb.WriteString(quote(value))
	sb.WriteByte('\n')
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// quote wraps values that would otherwise be ambiguous in a row or a key/value line
func quote(s string) string {
	if s == "" || s != strings.TrimSpace(s) || strings.ContainsAny(s, ",:\"\n\r\\") {
		return strconv.Quote(s)
	}
	return s
}
