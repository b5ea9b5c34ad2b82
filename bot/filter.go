package bot

import "strings"

// Eligible decides whether an inbound event should be processed at all.
// Pure predicate, no side effects. Rejections: anything that is not a plain
// message, the bot's own messages (self-reply loop guard), and messages that
// open with a direct mention of somebody else.
func Eligible(ev Event, botUserID string) bool {
	if strings.TrimSpace(ev.Type) != "message" {
		return false
	}
	if strings.TrimSpace(ev.Subtype) != "" {
		return false
	}
	user := strings.TrimSpace(ev.User)
	if user == "" {
		return false
	}
	botUserID = strings.TrimSpace(botUserID)
	if botUserID != "" && user == botUserID {
		return false
	}
	if strings.HasPrefix(ev.Text, "<@U") && !strings.Contains(ev.Text, botUserID) {
		return false
	}
	return true
}
