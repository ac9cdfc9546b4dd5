package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/aether/internal/storage"
	"github.com/michaelbrown/aether/internal/storage/sqlite"
)

var (
	statusFilter string
	limitFlag    int
	exportFormat string
	exportOutput string
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"h"},
	Short:   "Inspect recorded executions",
	Long: `Read the execution history written by 'aether serve' when
history.enabled is true. Only metadata is recorded, never code or output.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent executions",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show one execution",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export executions as markdown or JSON",
	RunE:  runHistoryExport,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyExportCmd)

	for _, c := range []*cobra.Command{historyListCmd, historyExportCmd} {
		c.Flags().StringVar(&statusFilter, "status", "", "Filter by status (success, error)")
		c.Flags().IntVar(&limitFlag, "limit", 20, "Max executions")
	}

	historyExportCmd.Flags().StringVar(&exportFormat, "format", "md", "Export format: md or json")
	historyExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
}

func openStore() (storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.History.DBPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no history at %s (enable history.enabled and run 'aether serve')", cfg.History.DBPath)
	}
	return sqlite.Open(cfg.History.DBPath)
}

func listOptions() storage.ListOptions {
	return storage.ListOptions{
		Status: storage.ExecutionStatus(statusFilter),
		Limit:  limitFlag,
	}
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	execs, err := store.ListExecutions(context.Background(), listOptions())
	if err != nil {
		return err
	}

	if len(execs) == 0 {
		fmt.Println("No executions found.")
		return nil
	}

	fmt.Printf("%-10s %-8s %-24s %-10s %-9s %s\n", "ID", "STATUS", "SANDBOX", "DURATION", "VIA", "STARTED")
	fmt.Println(strings.Repeat("─", 80))

	for _, e := range execs {
		sandboxID := e.SandboxID
		if sandboxID == "" {
			sandboxID = "-"
		}
		if len(sandboxID) > 22 {
			sandboxID = sandboxID[:22] + ".."
		}

		fmt.Printf("%-10s %-8s %-24s %-10s %-9s %s\n",
			e.ID[:8], e.Status, sandboxID, formatDuration(e.DurationMS), e.Transport, timeAgo(e.StartedAt))
	}

	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.GetExecution(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Execution: %s\n", e.ID)
	fmt.Printf("Status:    %s\n", e.Status)
	if e.Stage != "" {
		fmt.Printf("Stage:     %s\n", e.Stage)
	}
	if e.SandboxID != "" {
		fmt.Printf("Sandbox:   %s\n", e.SandboxID)
	}
	fmt.Printf("Started:   %s\n", e.StartedAt.Local().Format(time.RFC3339))
	fmt.Printf("Duration:  %s\n", formatDuration(e.DurationMS))
	fmt.Printf("Timeout:   %ds\n", e.Timeout)
	fmt.Printf("Client:    %s (%s)\n", e.RemoteAddr, e.Transport)
	fmt.Printf("Sizes:     code %dB, stdout %dB, stderr %dB\n", e.CodeBytes, e.StdoutBytes, e.StderrBytes)
	if e.Message != "" {
		fmt.Printf("\n\033[31m%s\033[0m\n", truncate(e.Message, 500))
	}
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	execs, err := store.ListExecutions(context.Background(), listOptions())
	if err != nil {
		return err
	}

	var output string
	switch exportFormat {
	case "json":
		data, err := storage.ExportJSON(execs)
		if err != nil {
			return err
		}
		output = string(data)
	case "md":
		output = storage.ExportMarkdown(execs)
	default:
		return fmt.Errorf("unknown format %q (md or json)", exportFormat)
	}

	if exportOutput != "" {
		return os.WriteFile(exportOutput, []byte(output), 0o644)
	}

	fmt.Print(output)
	return nil
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", ms)
	}
	return d.Round(100 * time.Millisecond).String()
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
