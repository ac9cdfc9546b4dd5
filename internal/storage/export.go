package storage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExportMarkdown renders execution records as a markdown table.
func ExportMarkdown(execs []Execution) string {
	var b strings.Builder

	b.WriteString("# Executions\n\n")
	b.WriteString("| ID | Started | Status | Sandbox | Duration | Code | Stdout | Stderr | Message |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|\n")

	for _, e := range execs {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %dms | %dB | %dB | %dB | %s |\n",
			e.ID,
			e.StartedAt.Format("2006-01-02 15:04:05"),
			e.Status,
			e.SandboxID,
			e.DurationMS,
			e.CodeBytes,
			e.StdoutBytes,
			e.StderrBytes,
			strings.ReplaceAll(e.Message, "|", `\|`),
		))
	}

	return b.String()
}

// ExportJSON renders execution records as formatted JSON.
func ExportJSON(execs []Execution) ([]byte, error) {
	if execs == nil {
		execs = []Execution{}
	}
	export := struct {
		Count      int         `json:"count"`
		Executions []Execution `json:"executions"`
	}{
		Count:      len(execs),
		Executions: execs,
	}
	return json.MarshalIndent(export, "", "  ")
}
