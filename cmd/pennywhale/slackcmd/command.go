// Package slackcmd runs the bot against Slack's real-time messaging stream.
package slackcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pennywhale/pennywhale/bot"
	"github.com/pennywhale/pennywhale/internal/configutil"
	"github.com/pennywhale/pennywhale/internal/healthcheck"
	"github.com/pennywhale/pennywhale/internal/idempotency"
	"github.com/pennywhale/pennywhale/internal/logutil"
	"github.com/pennywhale/pennywhale/invite"
	"github.com/pennywhale/pennywhale/nlu"
	"github.com/pennywhale/pennywhale/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	reconnectBackoff = 2 * time.Second
	pingInterval     = 30 * time.Second
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slack",
		Short: "Run the Slack bot over an RTM connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			botToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-token", "slack.bot_token"))
			if botToken == "" {
				return fmt.Errorf("missing slack.bot_token (set via --slack-bot-token or PENNYWHALE_SLACK_BOT_TOKEN)")
			}
			nluToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "nlu-access-token", "nlu.access_token"))
			if nluToken == "" {
				return fmt.Errorf("missing nlu.access_token (set via --nlu-access-token or PENNYWHALE_NLU_ACCESS_TOKEN)")
			}
			oauthToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-oauth-token", "slack.oauth_token"))
			usergroup := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-support-usergroup", "slack.support_usergroup"))

			logger, err := logutil.FromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			httpClient := &http.Client{Timeout: 30 * time.Second}

			var nluOpts []nlu.Option
			if configutil.FlagOrViperBool(cmd, "nlu-development", "nlu.development") {
				devHost := strings.TrimSpace(viper.GetString("nlu.development_host"))
				if devHost == "" {
					return fmt.Errorf("nlu.development requires nlu.development_host")
				}
				nluOpts = append(nluOpts, nlu.WithEndpoint(devHost, "/api/query"))
			}
			classifier := nlu.New(httpClient, nluToken, nluOpts...)

			sessions := session.NewManager(session.ManagerOptions{})

			var inviter bot.Inviter
			if oauthToken != "" && usergroup != "" {
				inviter = invite.NewGateway(httpClient, "", oauthToken, logger)
			} else {
				logger.Warn("invites_disabled", "reason", "missing slack.oauth_token or slack.support_usergroup")
			}

			api := newSlackAPI(httpClient, "https://slack.com/api", botToken)

			healthListen := healthcheck.NormalizeListen(configutil.FlagOrViperString(cmd, "health-listen", "health.listen"))
			if healthListen != "" {
				healthServer, err := healthcheck.StartServer(cmd.Context(), logger, healthListen, "slack")
				if err != nil {
					logger.Warn("health_server_start_error", "addr", healthListen, "error", err.Error())
				} else {
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
						_ = healthServer.Shutdown(shutdownCtx)
						cancel()
					}()
				}
			}

			seen := idempotency.NewSeenSet(configutil.FlagOrViperInt(cmd, "dedup-cap", "slack.dedup_cap"))

			logger.Info("slack_start",
				"support_usergroup", usergroup,
				"invites_enabled", inviter != nil,
				"nlu_development", len(nluOpts) > 0,
			)

			for {
				if cmd.Context().Err() != nil {
					logger.Info("slack_stop", "reason", "context_canceled")
					return nil
				}
				conn, self, err := api.connectRTM(cmd.Context())
				if err != nil {
					if cmd.Context().Err() != nil {
						logger.Info("slack_stop", "reason", "context_canceled")
						return nil
					}
					logger.Warn("slack_rtm_connect_error", "error", err.Error())
					if err := sleepWithContext(cmd.Context(), reconnectBackoff); err != nil {
						return nil
					}
					continue
				}
				logger.Info("slack_rtm_connected", "bot_user_id", self.ID, "bot_user_name", self.Name)

				b, err := bot.New(bot.Options{
					BotUserID:         self.ID,
					Sessions:          sessions,
					Classifier:        classifier,
					Responder:         &rtmResponder{api: api, conn: conn, log: logger},
					Inviter:           inviter,
					SupportUsergroup:  usergroup,
					CompanyShareDelay: configutil.FlagOrViperDuration(cmd, "company-share-delay", "bot.company_share_delay"),
					BillEstimateDelay: configutil.FlagOrViperDuration(cmd, "bill-estimate-delay", "bot.bill_estimate_delay"),
					Logger:            logger,
				})
				if err != nil {
					conn.close()
					return err
				}

				readErr := consumeRTM(cmd.Context(), conn, seen, func(ev bot.Event) {
					go b.HandleEvent(cmd.Context(), ev)
				})
				conn.close()
				if readErr != nil && !errors.Is(readErr, context.Canceled) && !errors.Is(readErr, context.DeadlineExceeded) {
					logger.Warn("slack_rtm_read_error", "error", readErr.Error())
				}
			}
		},
	}

	cmd.Flags().String("slack-bot-token", "", "Slack bot token (xoxb-...).")
	cmd.Flags().String("slack-oauth-token", "", "Slack OAuth token used for usergroup invitations.")
	cmd.Flags().String("slack-support-usergroup", "", "Usergroup id invited into the channel after a bill estimate.")
	cmd.Flags().String("nlu-access-token", "", "NLU service client access token.")
	cmd.Flags().Bool("nlu-development", false, "Use the development NLU endpoint (nlu.development_host).")
	cmd.Flags().String("health-listen", "", "Liveness HTTP listen address (PORT env is honored when empty).")
	cmd.Flags().Duration("company-share-delay", 0, "Delay before the company-collection reply goes out.")
	cmd.Flags().Duration("bill-estimate-delay", 0, "Delay before the bill estimate and support invitation go out.")
	cmd.Flags().Int("dedup-cap", 0, "Inbound event dedup window size (0 uses the default).")

	return cmd
}

// consumeRTM reads the event stream until the connection drops or ctx ends.
// Keepalive pings are sent from a side goroutine; duplicate deliveries after
// a reconnect are dropped via the seen-set.
func consumeRTM(ctx context.Context, conn *rtmConn, seen *idempotency.SeenSet, onEvent func(ev bot.Event)) error {
	if conn == nil {
		return fmt.Errorf("rtm connection is nil")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// Unblocks the blocked read below.
				conn.close()
				return
			case <-ticker.C:
				_ = conn.ping()
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw, err := conn.readRaw()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var ev bot.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		if strings.TrimSpace(ev.Type) != "message" {
			// hello, pong, presence and send-acks all land here.
			continue
		}
		key, err := idempotency.EventKey(raw)
		if err == nil && seen.Observe(key) {
			continue
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}
}

// rtmResponder sends outbound traffic: replies over the Web API (which
// retries), the typing indicator over the live socket (best effort).
type rtmResponder struct {
	api  *slackAPI
	conn *rtmConn
	log  *slog.Logger
}

func (r *rtmResponder) Reply(ctx context.Context, ev bot.Event, text string) error {
	return r.api.postMessage(ctx, ev.Channel, text)
}

func (r *rtmResponder) Typing(ev bot.Event) {
	if err := r.conn.typing(ev.Channel); err != nil {
		r.log.Debug("typing_indicator_error", "channel", ev.Channel, "error", err.Error())
	}
}
