package bot

import (
	"context"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pennywhale/pennywhale/nlu"
	"github.com/pennywhale/pennywhale/session"
)

// inviteTimeout bounds the deferred bill-estimate side effects, which run
// detached from any request context.
const inviteTimeout = 30 * time.Second

// handleSayCompany drives the NEW → COMPANIES_SHARED transition. The reply
// is deferred: if more companies arrive before the delay expires, the
// pending reply is superseded and suppressed. Suppression is a state check
// at fire time, not a timer cancel.
func (b *Bot) handleSayCompany(ev Event, resp *nlu.Response) {
	var (
		already bool
		count   int
	)
	b.sessions.Update(ev.Channel, func(s *session.Session) {
		if s.SharedCompanies {
			already = true
			return
		}
		s.SharedCompanies = true
		for _, name := range resp.Result.CompanyNames() {
			s.AddCompany(name)
		}
		count = len(s.Companies)
	})
	if already {
		b.log.Info("say_company_already_handled", "channel", ev.Channel)
		return
	}

	speech := resp.Speech()
	b.log.Info("say_company_shared", "channel", ev.Channel, "companies", count)

	b.afterFunc(b.companyShareDelay, func() {
		if b.sessions.CompanyCount(ev.Channel) != count {
			b.log.Info("say_company_reply_superseded", "channel", ev.Channel)
			return
		}
		if speech == "" {
			return
		}
		if err := b.responder.Reply(context.Background(), ev, speech); err != nil {
			b.log.Warn("reply_send_error", "channel", ev.Channel, "error", err.Error())
		}
	})
}

// handleEstimateBill drives COMPANIES_SHARED → BILL_ESTIMATED. It fires at
// most once per channel and only after companies were shared. The single
// deferred task invites the support group first, then sends the estimate.
func (b *Bot) handleEstimateBill(ev Event, resp *nlu.Response) {
	var (
		reason    string
		companies []string
	)
	snap := b.sessions.Update(ev.Channel, func(s *session.Session) {
		if !s.SharedCompanies {
			reason = "companies_not_shared"
			return
		}
		if s.EstimatedBill {
			reason = "already_estimated"
			return
		}
		if len(s.Companies) == 0 {
			reason = "no_companies"
			return
		}
		s.EstimatedBill = true
	})
	if reason != "" {
		b.log.Info("estimate_bill_skipped", "channel", ev.Channel, "reason", reason)
		return
	}
	companies = snap.Companies

	company := capitalizeFirst(companies[b.randIntN(len(companies))])
	lower := estimateLowerBound
	upper := lower + estimatePerCompanyUpper*len(companies)
	annual := lower * 12
	text := fmt.Sprintf(
		"Based on what you pay %s, you could save $%d-$%d a month. That's at least $%d a year!",
		company, lower, upper, annual,
	)

	b.log.Info("estimate_bill_scheduled", "channel", ev.Channel, "companies", len(companies))

	b.afterFunc(b.billEstimateDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), inviteTimeout)
		defer cancel()
		// Invitation first, then the reply.
		if b.inviter != nil && b.supportUsergroup != "" {
			if err := b.inviter.InviteGroup(ctx, ev.Channel, b.supportUsergroup); err != nil {
				b.log.Warn("invite_group_error", "channel", ev.Channel, "usergroup", b.supportUsergroup, "error", err.Error())
			}
		}
		if err := b.responder.Reply(ctx, ev, text); err != nil {
			b.log.Warn("reply_send_error", "channel", ev.Channel, "error", err.Error())
		}
	})
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
