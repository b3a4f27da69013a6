package prediction

import (
	"strings"
)

// Output labels, in the order the model is asked to emit them
const (
	LabelArticleTitle            = "article-title:"
	LabelGameOverviewHeading     = "game-overview-heading:"
	LabelGameOverviewContent     = "game-overview-content:"
	LabelTeamASeasonHeading      = "team-a-season-heading:"
	LabelTeamASeasonContent      = "team-a-season-content:"
	LabelTeamBSeasonHeading      = "team-b-season-heading:"
	LabelTeamBSeasonContent      = "team-b-season-content:"
	LabelMatchupBreakdownHeading = "matchup-breakdown-heading:"
	LabelMatchupBreakdownContent = "matchup-breakdown-content:"
	LabelSpreadPickHeading       = "spread-pick-heading:"
	LabelSpreadPickFinalPick     = "spread-pick-final-pick:"
	LabelSpreadPickContent       = "spread-pick-content:"
	LabelOverUnderPickHeading    = "over-under-pick-heading:"
	LabelOverUnderFinalPick      = "over-under-final-pick:"
	LabelOverUnderPickContent    = "over-under-pick-content:"
	LabelPlayerPropPickHeading   = "player-prop-pick-heading:"
	LabelPlayerPropFinalPick     = "player-prop-final-pick:"
	LabelPlayerPropPickContent   = "player-prop-pick-content:"
)

const maxPickContentLines = 3

// expectedLabels lists every label a well-formed response carries
var expectedLabels = []string{
	LabelArticleTitle,
	LabelGameOverviewHeading, LabelGameOverviewContent,
	LabelTeamASeasonHeading, LabelTeamASeasonContent,
	LabelTeamBSeasonHeading, LabelTeamBSeasonContent,
	LabelMatchupBreakdownHeading, LabelMatchupBreakdownContent,
	LabelSpreadPickHeading, LabelSpreadPickFinalPick, LabelSpreadPickContent,
	LabelOverUnderPickHeading, LabelOverUnderFinalPick, LabelOverUnderPickContent,
	LabelPlayerPropPickHeading, LabelPlayerPropFinalPick, LabelPlayerPropPickContent,
}

// Article is the structured form of a generated prediction
type Article struct {
	Title string

	GameOverviewHeading         string
	GameOverviewDescription     string
	TeamASeasonHeading          string
	TeamASeasonDescription      string
	TeamBSeasonHeading          string
	TeamBSeasonDescription      string
	MatchupBreakdownHeading     string
	MatchupBreakdownDescription string

	SpreadPickHeading         string
	SpreadFinalPick           string
	SpreadPickDescription     string
	OverUnderPickHeading      string
	OverUnderFinalPick        string
	OverUnderPickDescription  string
	PlayerPropPickHeading     string
	PlayerPropFinalPick       string
	PlayerPropPickDescription string

	// Missing lists expected labels absent from the response
	Missing []string
}

// Degraded reports whether fallback extraction was needed
func (a Article) Degraded() bool {
	return len(a.Missing) > 0
}

// Extract returns the trimmed text between label and the first nextLabel after it.
// An empty or absent nextLabel runs to the end of text. A missing label yields "".
func Extract(text, label, nextLabel string) string {
	start := strings.Index(text, label)
	if start == -1 {
		return ""
	}
	begin := start + len(label)

	if nextLabel == "" {
		return strings.TrimSpace(text[begin:])
	}

	end := strings.Index(text[begin:], nextLabel)
	if end == -1 {
		return strings.TrimSpace(text[begin:])
	}

	return strings.TrimSpace(text[begin : begin+end])
}

// nonEmptyLines splits on \n or \r\n and drops blank lines
func nonEmptyLines(input string) []string {
	var out []string
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// FirstNonEmptyLine returns the first line with content, trimmed
func FirstNonEmptyLine(input string) string {
	lines := nonEmptyLines(input)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// ClampMaxLines keeps at most maxLines non-empty lines, in order
func ClampMaxLines(input string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := nonEmptyLines(input)
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n")
}

// section returns the body of label, ending at the first later label (in emission
// order) that appears after it. Absent labels are skipped, so one missing heading
// never pulls the following sections into the body. A missing label yields "".
func section(text, label string) string {
	start := strings.Index(text, label)
	if start == -1 {
		return ""
	}
	rest := text[start+len(label):]

	for _, next := range labelsAfter(label) {
		if end := strings.Index(rest, next); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return strings.TrimSpace(rest)
}

func labelsAfter(label string) []string {
	for i, l := range expectedLabels {
		if l == label {
			return expectedLabels[i+1:]
		}
	}
	return nil
}

// parsePick extracts one pick section. Older responses have no final-pick line,
// so the pick comes from the first line of the content.
func parsePick(text, headingLabel, finalPickLabel, contentLabel string) (heading, finalPick, description string) {
	heading = section(text, headingLabel)
	content := section(text, contentLabel)

	finalPick = FirstNonEmptyLine(section(text, finalPickLabel))
	if finalPick == "" {
		finalPick = FirstNonEmptyLine(content)
	}

	return heading, finalPick, ClampMaxLines(content, maxPickContentLines)
}

// ParseArticle turns a raw model response into an Article. It never fails:
// absent sections come back empty and are listed in Missing.
func ParseArticle(text string) Article {
	a := Article{
		Title:                       section(text, LabelArticleTitle),
		GameOverviewHeading:         section(text, LabelGameOverviewHeading),
		GameOverviewDescription:     section(text, LabelGameOverviewContent),
		TeamASeasonHeading:          section(text, LabelTeamASeasonHeading),
		TeamASeasonDescription:      section(text, LabelTeamASeasonContent),
		TeamBSeasonHeading:          section(text, LabelTeamBSeasonHeading),
		TeamBSeasonDescription:      section(text, LabelTeamBSeasonContent),
		MatchupBreakdownHeading:     section(text, LabelMatchupBreakdownHeading),
		MatchupBreakdownDescription: section(text, LabelMatchupBreakdownContent),
	}

	a.SpreadPickHeading, a.SpreadFinalPick, a.SpreadPickDescription =
		parsePick(text, LabelSpreadPickHeading, LabelSpreadPickFinalPick, LabelSpreadPickContent)
	a.OverUnderPickHeading, a.OverUnderFinalPick, a.OverUnderPickDescription =
		parsePick(text, LabelOverUnderPickHeading, LabelOverUnderFinalPick, LabelOverUnderPickContent)
	a.PlayerPropPickHeading, a.PlayerPropFinalPick, a.PlayerPropPickDescription =
		parsePick(text, LabelPlayerPropPickHeading, LabelPlayerPropFinalPick, LabelPlayerPropPickContent)

	for _, label := range expectedLabels {
		if !strings.Contains(text, label) {
			a.Missing = append(a.Missing, label)
		}
	}

	return a
}
