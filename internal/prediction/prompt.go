package prediction

import "strings"

// SystemPrompt fixes the persona for every generation request
const SystemPrompt = "You are a seasoned, sharp, slightly degenerate sports bettor, a mix of film junkie, " +
	"data nerd and Vegas insider. You talk in confident sportsbook language. You never mention being an AI. " +
	"Base reasoning ONLY on the provided odds data."

const userPromptTemplate = `Write a prediction article using this structure:

1. Game Overview: 1-2 sentences.
2. Team A Season Snapshot: record, ATS/O-U, identity, trends.
3. Team B Season Snapshot: same but contrasting.
4. Matchup Breakdown: who has the edge and why.
5. Predictions:
   - Spread Pick
   - Over/Under Pick
   - Player Prop Pick

LENGTH RULES:
- game-overview-content MUST be AT LEAST 400 words.
- team-a-season-content MUST be AT LEAST 400 words.
- team-b-season-content MUST be AT LEAST 400 words.
- matchup-breakdown-content MUST be AT LEAST 400 words.
- spread-pick-content MUST be MAX 3 lines (newline-separated).
- over-under-pick-content MUST be MAX 3 lines (newline-separated).
- player-prop-pick-content MUST be MAX 3 lines (newline-separated).
- spread-pick-final-pick MUST be EXACTLY 1 line (just the pick, no label).
- over-under-final-pick MUST be EXACTLY 1 line (just the pick, no label).
- player-prop-final-pick MUST be EXACTLY 1 line (just the pick, no label).

OUTPUT FORMAT (NO MARKDOWN, FOLLOW EXACTLY):

article-title: <title>

game-overview-heading: <heading>
game-overview-content: <content>

team-a-season-heading: <heading>
team-a-season-content: <content>

team-b-season-heading: <heading>
team-b-season-content: <content>

matchup-breakdown-heading: <heading>
matchup-breakdown-content: <content>

spread-pick-heading: <heading>
spread-pick-final-pick: <one line pick>
spread-pick-content: <max 3 lines>

over-under-pick-heading: <heading>
over-under-final-pick: <one line pick>
over-under-pick-content: <max 3 lines>

player-prop-pick-heading: <heading>
player-prop-final-pick: <one line pick>
player-prop-pick-content: <max 3 lines>

DATA:
{{DATA}}`

// BuildUserPrompt embeds the encoded odds into the labelled output instructions
func BuildUserPrompt(encodedEvent string) string {
	return strings.Replace(userPromptTemplate, "{{DATA}}", encodedEvent, 1)
}
