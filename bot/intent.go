package bot

import "strings"

// Intent is a supported classification label. Anything the NLU service
// returns that is not listed here maps to IntentUnhandled; the dispatcher
// treats that as an explicit drop case, not a missing map entry.
type Intent string

const (
	IntentSayCompany   Intent = "say-company"
	IntentEstimateBill Intent = "estimate-bill"
	IntentUnhandled    Intent = "unhandled"
)

// ParseIntent maps an NLU intent name onto a supported Intent. Total:
// unknown or empty names become IntentUnhandled.
func ParseIntent(name string) Intent {
	switch strings.TrimSpace(name) {
	case string(IntentSayCompany):
		return IntentSayCompany
	case string(IntentEstimateBill):
		return IntentEstimateBill
	default:
		return IntentUnhandled
	}
}
