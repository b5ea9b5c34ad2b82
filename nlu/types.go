package nlu

import (
	"encoding/json"
	"strings"
)

// Context is the structured context bag sent alongside every query so the
// NLU service can resolve references across a conversation.
type Context struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// QueryRequest is one classification request.
type QueryRequest struct {
	Text      string
	SessionID string
	Contexts  []Context
}

type queryPayload struct {
	Query     string    `json:"query"`
	SessionID string    `json:"sessionId"`
	Lang      string    `json:"lang"`
	Contexts  []Context `json:"contexts,omitempty"`
}

// Response is the NLU service's answer. A successful response may carry a
// nil Result; callers must treat that as "nothing to do".
type Response struct {
	ID     string  `json:"id,omitempty"`
	Result *Result `json:"result,omitempty"`
	Status *Status `json:"status,omitempty"`
}

type Status struct {
	Code      int    `json:"code,omitempty"`
	ErrorType string `json:"errorType,omitempty"`
}

type Result struct {
	Metadata      Metadata        `json:"metadata"`
	ResolvedQuery string          `json:"resolvedQuery,omitempty"`
	Parameters    json.RawMessage `json:"parameters,omitempty"`
	Fulfillment   Fulfillment     `json:"fulfillment"`
}

type Metadata struct {
	IntentName string `json:"intentName,omitempty"`
}

type Fulfillment struct {
	Speech string `json:"speech,omitempty"`
}

// Intent returns the classified intent name, or "" when the response or any
// intermediate field is absent.
func (r *Response) Intent() string {
	if r == nil || r.Result == nil {
		return ""
	}
	return strings.TrimSpace(r.Result.Metadata.IntentName)
}

// Speech returns the pre-rendered fulfillment utterance, or "".
func (r *Response) Speech() string {
	if r == nil || r.Result == nil {
		return ""
	}
	return strings.TrimSpace(r.Result.Fulfillment.Speech)
}

type companyParameters struct {
	Company []string `json:"company"`
}

// CompanyNames extracts the "company" parameter list. Absent or malformed
// parameters yield nil rather than an error: the service's parameter shapes
// vary by intent and the caller only cares about this one.
func (r *Result) CompanyNames() []string {
	if r == nil || len(r.Parameters) == 0 {
		return nil
	}
	var params companyParameters
	if err := json.Unmarshal(r.Parameters, &params); err != nil {
		return nil
	}
	out := make([]string, 0, len(params.Company))
	for _, name := range params.Company {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
