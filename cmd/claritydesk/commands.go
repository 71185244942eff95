package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/claritydesk/internal/config"
	"github.com/kalambet/claritydesk/internal/intake"
	"github.com/kalambet/claritydesk/internal/orchestrator"
	"github.com/kalambet/claritydesk/internal/records"
)

// loadingInterval paces the loading messages shown while a request is in flight.
var loadingInterval = 3 * time.Second

// --- submit ---

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Request a Technical report or a Strategic judgment",
}

var submitTechnicalCmd = &cobra.Command{
	Use:   "technical",
	Short: "Request a technical Clarity Report",
	Long: `Request a technical Clarity Report from an intake JSON file.

When the desk is offline the request is queued and sent on the next sync.

Examples:
  claritydesk submit technical --file ./prius.json
  claritydesk submit technical --file ./prius.json --notes-pdf ./service-history.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var in intake.TechnicalInput
		if err := readIntake(cmd, &in); err != nil {
			return err
		}
		notes, err := pdfNotes(cmd)
		if err != nil {
			return err
		}
		in.RecentWork = intake.AppendNotes(in.RecentWork, notes)
		if err := in.Validate(); err != nil {
			return err
		}
		return submit(cmd.Context(), "/reports", in)
	},
}

var submitStrategicCmd = &cobra.Command{
	Use:   "strategic",
	Short: "Request a Strategic judgment brief",
	Long: `Request a Strategic judgment brief from an intake JSON file.

Examples:
  claritydesk submit strategic --file ./leaf-import.json
  claritydesk submit strategic --file - < leaf-import.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var in intake.StrategicInput
		if err := readIntake(cmd, &in); err != nil {
			return err
		}
		notes, err := pdfNotes(cmd)
		if err != nil {
			return err
		}
		in.Context = intake.AppendNotes(in.Context, notes)
		if err := in.Validate(); err != nil {
			return err
		}
		return submit(cmd.Context(), "/judgments", in)
	},
}

func init() {
	for _, c := range []*cobra.Command{submitTechnicalCmd, submitStrategicCmd} {
		c.Flags().String("file", "", "intake JSON file, or - for stdin")
		c.Flags().String("notes-pdf", "", "PDF (service record, invoice) whose text is appended to the notes")
		c.MarkFlagRequired("file")
		submitCmd.AddCommand(c)
	}
}

func readIntake(cmd *cobra.Command, v any) error {
	file, _ := cmd.Flags().GetString("file")
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return fmt.Errorf("reading intake: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing intake %s: %w", file, err)
	}
	return nil
}

func pdfNotes(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("notes-pdf")
	if path == "" {
		return "", nil
	}
	text, err := intake.ReadPDFText(path)
	if err != nil {
		return "", err
	}
	printStep("Attached %d characters of notes from %s", len(text), path)
	return text, nil
}

// submitResult is the subset of a record or entry the CLI reports on.
type submitResult struct {
	ID     string         `json:"id"`
	Status records.Status `json:"status"`
}

func submit(ctx context.Context, path string, body any) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	stop := showLoading(ctx)
	resp, err := client.post(ctx, path, body)
	stop()
	if err != nil {
		return err
	}

	var res submitResult
	if err := decodeJSON(resp, &res); err != nil {
		return explain(err)
	}
	reportSubmitted(res)
	return nil
}

func reportSubmitted(res submitResult) {
	switch res.Status {
	case records.StatusPending:
		printWarning("Offline: queued %s, it will be sent on the next sync", res.ID)
	default:
		printSuccess("%s %s", res.ID, res.Status)
		fmt.Printf("View it with: claritydesk history show %s\n", res.ID)
	}
}

// showLoading cycles the loading messages on stderr until stop is called.
func showLoading(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(loadingInterval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			printStep("%s", orchestrator.LoadingMessages[i%len(orchestrator.LoadingMessages)])
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// explain prints the classified parts of a server error before returning it.
func explain(err error) error {
	se, ok := asServerError(err)
	if !ok || se.Title == "" {
		return err
	}
	printError("%s", se.Title)
	printStatus("Detail", "%s", se.Detail)
	if se.Trace != "" {
		printStatus("Trace", "%s", se.Trace)
	}
	if se.Type == "generation_error" {
		printStatus("Hint", "run `claritydesk retry` to send it again or `claritydesk dismiss`")
	}
	return fmt.Errorf("request failed")
}

// --- retry / dismiss / sync ---

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-send the most recent failed request as a new record",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submit(cmd.Context(), "/retry", nil)
	},
}

var dismissCmd = &cobra.Command{
	Use:   "dismiss",
	Short: "Clear the current error",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/error/dismiss", nil)
		if err != nil {
			return err
		}
		var st struct {
			Status string `json:"status"`
		}
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}
		printSuccess("Error dismissed, status %s", st.Status)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send every pending record now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		stop := showLoading(cmd.Context())
		resp, err := client.post(cmd.Context(), "/sync", nil)
		stop()
		if err != nil {
			return err
		}

		var res orchestrator.SyncResult
		if err := decodeJSON(resp, &res); err != nil {
			return explain(err)
		}
		switch {
		case res.Skipped:
			printWarning("Sync skipped: offline or another request is in flight")
		case res.Completed == 0 && res.Failed == 0:
			printSuccess("Nothing to sync")
		default:
			printSuccess("Synced %d completed, %d failed", res.Completed, res.Failed)
		}
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse and manage stored records",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List records, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		variant, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/records"
		if variant != "" {
			path += "?type=" + url.QueryEscape(variant)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var entries []records.Entry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No records found.")
			return nil
		}
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}

		for _, e := range entries {
			fmt.Printf("%s  %s  %-9s  %s  %s\n",
				colorize(colorCyan, e.ID),
				e.Timestamp,
				colorize(statusColor(string(e.Status)), string(e.Status)),
				e.VehicleYear,
				e.ClientName,
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a full record with its report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		variant, err := records.VariantOf(args[0])
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), recordPath(variant, args[0]))
		if err != nil {
			return err
		}

		var rec any
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Permanently delete a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will permanently delete %s. Use --confirm to proceed.", args[0])
			return nil
		}
		variant, err := records.VariantOf(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), recordPath(variant, args[0]))
		if err != nil {
			return err
		}
		var out map[string]string
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

func recordPath(v records.Variant, id string) string {
	return fmt.Sprintf("/records/%s/%s", v, url.PathEscape(id))
}

func init() {
	historyListCmd.Flags().String("type", "", "filter by technical or strategic")
	historyListCmd.Flags().Int("limit", 0, "maximum number of records to list (0 for all)")
	historyDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %v)", err, config.ValidKeys())
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store a provider API key in the local secrets file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
