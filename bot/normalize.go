package bot

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// visitorSaidPattern matches the relay wrapper a third-party live-chat
// integration uses when it forwards website visitors into Slack. Only the
// quoted visitor utterance is the actual request.
var visitorSaidPattern = regexp.MustCompile(`(?i)visitor said:\s*"(.*)"`)

// NormalizeText turns raw Slack message text into the text forwarded to the
// NLU service: HTML/XML entities decoded, a known mis-encoded right single
// quote repaired, the bot's own mention token stripped, and the visitor-said
// relay wrapper unwrapped.
func NormalizeText(text, botUserID string) string {
	text = html.UnescapeString(text)
	// UTF-8 right single quote read as Windows-1252, a recurring artifact
	// in relayed visitor messages.
	text = strings.ReplaceAll(text, "â€™", "'")
	botUserID = strings.TrimSpace(botUserID)
	if botUserID != "" {
		text = strings.ReplaceAll(text, "<@"+botUserID+">", "")
	}
	if m := visitorSaidPattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	return strings.TrimSpace(text)
}
