package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/sharedsave/internal/config"
	"github.com/Iron-Ham/sharedsave/internal/session"
	"github.com/Iron-Ham/sharedsave/internal/statusapi"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's session status",
	Long: `Display the state of the running daemon: connectivity, role, offline
mode and whether the game is running. The daemon must have the status API
enabled (status.listen).`,
	RunE: runStatus,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status document")
}

var (
	statusLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Width(18)
	statusGoodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	statusWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	statusBadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
)

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Status.Listen == "" {
		return fmt.Errorf("status API is disabled (status.listen is empty)")
	}

	out := cmd.OutOrStdout()
	lock, running := session.RunningDaemon(cfg.Paths.ResolveStateDir())
	if !running {
		fmt.Fprintln(out, "No daemon running")
		return nil
	}
	fmt.Fprintf(out, "Daemon PID %d, started %s\n", lock.PID, lock.StartedAt.Local().Format(time.DateTime))

	snap, err := statusapi.NewClient(cfg.Status.Listen).Status(cmd.Context())
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	styled := false
	if f, ok := out.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	fmt.Fprint(out, renderStatus(snap, styled))
	return nil
}

// renderStatus formats a snapshot as aligned label/value lines.
func renderStatus(snap session.Snapshot, styled bool) string {
	type row struct {
		label string
		value string
		style lipgloss.Style
	}

	connStyle := statusBadStyle
	if snap.Connectivity == "online" {
		connStyle = statusGoodStyle
	}
	roleStyle := statusWarnStyle
	switch snap.Role {
	case "active":
		roleStyle = statusGoodStyle
	case "idle":
		roleStyle = lipgloss.NewStyle()
	}
	offlineStyle := lipgloss.NewStyle()
	if snap.OfflineMode {
		offlineStyle = statusWarnStyle
	}

	rows := []row{
		{"Client", snap.ClientID, lipgloss.NewStyle()},
		{"Connectivity", snap.Connectivity, connStyle},
		{"Role", snap.Role, roleStyle},
		{"Offline mode", yesNo(snap.OfflineMode), offlineStyle},
		{"Save available", yesNo(snap.Available), lipgloss.NewStyle()},
		{"Game running", yesNo(snap.ProcessRunning), lipgloss.NewStyle()},
	}
	if snap.LastConnectionLossAt != nil {
		rows = append(rows, row{"Last lost", snap.LastConnectionLossAt.Local().Format(time.DateTime), lipgloss.NewStyle()})
	}
	if snap.SuppressOnlineNotice {
		rows = append(rows, row{"Online notices", "muted", lipgloss.NewStyle()})
	}
	if r := snap.LastRepair; r != nil {
		outcome, style := "unresolved", statusWarnStyle
		if r.Resolved {
			outcome, style = fmt.Sprintf("resolved after %d checks", r.Attempts), lipgloss.NewStyle()
		}
		rows = append(rows, row{"Last repair", fmt.Sprintf("%s, %s", r.Kind, outcome), style})
	}

	var sb strings.Builder
	for _, r := range rows {
		if styled {
			sb.WriteString(statusLabelStyle.Render(r.label))
			sb.WriteString(r.style.Render(r.value))
		} else {
			sb.WriteString(fmt.Sprintf("%-18s%s", r.label, r.value))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
