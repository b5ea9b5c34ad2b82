// Package consolecmd runs the classification pipeline against stdin, which
// is the quickest way to exercise an NLU agent change without a Slack
// workspace in the loop.
package consolecmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pennywhale/pennywhale/bot"
	"github.com/pennywhale/pennywhale/internal/configutil"
	"github.com/pennywhale/pennywhale/nlu"
	"github.com/pennywhale/pennywhale/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Classify stdin lines against the NLU service",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(configutil.FlagOrViperString(cmd, "nlu-access-token", "nlu.access_token"))
			fd := int(os.Stdin.Fd())
			interactive := term.IsTerminal(fd)

			if token == "" && interactive {
				fmt.Fprint(os.Stderr, "NLU access token: ")
				raw, err := term.ReadPassword(fd)
				fmt.Fprintln(os.Stderr)
				if err != nil {
					return err
				}
				token = strings.TrimSpace(string(raw))
			}
			if token == "" {
				return fmt.Errorf("missing nlu.access_token (set via --nlu-access-token or PENNYWHALE_NLU_ACCESS_TOKEN)")
			}

			var nluOpts []nlu.Option
			if configutil.FlagOrViperBool(cmd, "nlu-development", "nlu.development") {
				devHost := strings.TrimSpace(viper.GetString("nlu.development_host"))
				if devHost == "" {
					return fmt.Errorf("nlu.development requires nlu.development_host")
				}
				nluOpts = append(nluOpts, nlu.WithEndpoint(devHost, "/api/query"))
			}
			client := nlu.New(nil, token, nluOpts...)
			sessions := session.NewManager(session.ManagerOptions{})

			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(os.Stdin)
			for {
				if interactive {
					fmt.Fprint(out, "> ")
				}
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					break
				}

				text := bot.NormalizeText(line, "")
				snap := sessions.Get("console")
				resp, err := client.Query(cmd.Context(), nlu.QueryRequest{
					Text:      text,
					SessionID: snap.ID,
					Contexts: []nlu.Context{{
						Name: "generic",
						Parameters: map[string]any{
							"slack_user_id": "console",
							"slack_channel": "console",
						},
					}},
				})
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}
				if resp.Result == nil {
					fmt.Fprintln(out, "(no result)")
					continue
				}
				intent := resp.Intent()
				fmt.Fprintf(out, "intent:  %s (%s)\n", intent, bot.ParseIntent(intent))
				if len(resp.Result.Parameters) > 0 {
					fmt.Fprintf(out, "params:  %s\n", string(resp.Result.Parameters))
				}
				if speech := resp.Speech(); speech != "" {
					fmt.Fprintf(out, "speech:  %s\n", speech)
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().String("nlu-access-token", "", "NLU service client access token.")
	cmd.Flags().Bool("nlu-development", false, "Use the development NLU endpoint (nlu.development_host).")

	return cmd
}
