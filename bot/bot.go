// Package bot holds the conversational core: message filtering, text
// normalization, the per-channel session state machine, and the dispatch of
// classified intents onto scripted response handlers.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pennywhale/pennywhale/nlu"
	"github.com/pennywhale/pennywhale/session"
)

// Responder sends outbound traffic back over the chat transport.
type Responder interface {
	Reply(ctx context.Context, ev Event, text string) error
	Typing(ev Event)
}

// Classifier is the NLU gateway contract the bot depends on.
type Classifier interface {
	Query(ctx context.Context, req nlu.QueryRequest) (*nlu.Response, error)
}

// Inviter runs the support-group channel invitation sequence.
type Inviter interface {
	InviteGroup(ctx context.Context, channelID, usergroup string) error
}

const (
	defaultCompanyShareDelay = 5 * time.Second
	defaultBillEstimateDelay = 3 * time.Second

	// Savings estimate constants: lower bound per month, increment per
	// distinct company, and months per year for the annual figure.
	estimateLowerBound      = 20
	estimatePerCompanyUpper = 10
)

type Options struct {
	BotUserID        string
	Sessions         *session.Manager
	Classifier       Classifier
	Responder        Responder
	Inviter          Inviter
	SupportUsergroup string

	// CompanyShareDelay and BillEstimateDelay override the deferred-action
	// delays (tests use short values).
	CompanyShareDelay time.Duration
	BillEstimateDelay time.Duration

	Logger *slog.Logger

	// AfterFunc overrides deferred-action scheduling (tests).
	AfterFunc func(d time.Duration, fn func())
	// RandIntN overrides the uniform company pick (tests).
	RandIntN func(n int) int
}

type Bot struct {
	botUserID        string
	sessions         *session.Manager
	classifier       Classifier
	responder        Responder
	inviter          Inviter
	supportUsergroup string

	companyShareDelay time.Duration
	billEstimateDelay time.Duration

	log       *slog.Logger
	afterFunc func(d time.Duration, fn func())
	randIntN  func(n int) int
}

func New(opts Options) (*Bot, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if opts.Responder == nil {
		return nil, fmt.Errorf("responder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	afterFunc := opts.AfterFunc
	if afterFunc == nil {
		afterFunc = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	randIntN := opts.RandIntN
	if randIntN == nil {
		randIntN = rand.Intn
	}
	companyShareDelay := opts.CompanyShareDelay
	if companyShareDelay <= 0 {
		companyShareDelay = defaultCompanyShareDelay
	}
	billEstimateDelay := opts.BillEstimateDelay
	if billEstimateDelay <= 0 {
		billEstimateDelay = defaultBillEstimateDelay
	}
	return &Bot{
		botUserID:         opts.BotUserID,
		sessions:          opts.Sessions,
		classifier:        opts.Classifier,
		responder:         opts.Responder,
		inviter:           opts.Inviter,
		supportUsergroup:  opts.SupportUsergroup,
		companyShareDelay: companyShareDelay,
		billEstimateDelay: billEstimateDelay,
		log:               logger,
		afterFunc:         afterFunc,
		randIntN:          randIntN,
	}, nil
}

// HandleEvent processes one inbound chat event end to end: filter,
// normalize, classify, dispatch. It blocks for the duration of the NLU
// round-trip, so the transport loop runs it on its own goroutine per event;
// session state stays consistent because every mutation goes through the
// session manager's lock.
func (b *Bot) HandleEvent(ctx context.Context, ev Event) {
	if b == nil {
		return
	}
	if !Eligible(ev, b.botUserID) {
		b.log.Debug("event_skipped", "type", ev.Type, "subtype", ev.Subtype, "user", ev.User)
		return
	}
	text := NormalizeText(ev.Text, b.botUserID)
	if text == "" {
		b.log.Debug("event_empty_after_normalize", "channel", ev.Channel, "ts", ev.TS)
		return
	}

	snap := b.sessions.Get(ev.Channel)
	b.log.Debug("nlu_query", "channel", ev.Channel, "session_id", snap.ID, "text", text)

	resp, err := b.classifier.Query(ctx, nlu.QueryRequest{
		Text:      text,
		SessionID: snap.ID,
		Contexts: []nlu.Context{{
			Name: "generic",
			Parameters: map[string]any{
				"slack_user_id": ev.User,
				"slack_channel": ev.Channel,
			},
		}},
	})
	if err != nil {
		b.log.Warn("nlu_query_error", "channel", ev.Channel, "error", err.Error())
		return
	}
	if resp == nil || resp.Result == nil {
		// A success with no result is valid: nothing to say, nothing to do.
		return
	}
	b.dispatch(ctx, ev, resp)
}

// dispatch routes a classified response to exactly one handler. Handlers
// never chain. Unhandled intents are dropped with an info log.
func (b *Bot) dispatch(ctx context.Context, ev Event, resp *nlu.Response) {
	intent := ParseIntent(resp.Intent())
	if intent == IntentUnhandled {
		b.log.Info("intent_unhandled", "intent", resp.Intent(), "channel", ev.Channel)
		return
	}

	b.responder.Typing(ev)

	switch intent {
	case IntentSayCompany:
		b.handleSayCompany(ev, resp)
	case IntentEstimateBill:
		b.handleEstimateBill(ev, resp)
	}
}
