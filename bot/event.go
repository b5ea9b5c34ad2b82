package bot

// Event is one inbound message event from the chat transport, in the RTM
// wire shape.
type Event struct {
	Type    string `json:"type,omitempty"`
	Subtype string `json:"subtype,omitempty"`
	User    string `json:"user,omitempty"`
	Text    string `json:"text,omitempty"`
	Channel string `json:"channel,omitempty"`
	TS      string `json:"ts,omitempty"`
}
