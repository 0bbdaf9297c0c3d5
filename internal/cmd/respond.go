package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/sharedsave/internal/config"
	"github.com/Iron-Ham/sharedsave/internal/notify"
	"github.com/Iron-Ham/sharedsave/internal/statusapi"
)

var respondCmd = &cobra.Command{
	Use:   "respond <token>",
	Short: "Answer a notification",
	Long: `Send the response offered by a notification to the running daemon.

Valid tokens:
  enter_offline_mode      Leave the shared session and play offline
  suppress_online_notice  Stop "online play available" notices
  open_application        Start the game`,
	Args: cobra.ExactArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var tokens []string
		for _, t := range notify.Tokens() {
			tokens = append(tokens, string(t))
		}
		return tokens, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: runRespond,
}

func init() {
	rootCmd.AddCommand(respondCmd)
}

func runRespond(cmd *cobra.Command, args []string) error {
	tok, err := notify.ParseToken(strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Status.Listen == "" {
		return fmt.Errorf("status API is disabled (status.listen is empty)")
	}

	if _, err := statusapi.NewClient(cfg.Status.Listen).Respond(cmd.Context(), string(tok)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", tok)
	return nil
}
