package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ExportText renders executions as a fixed-width table.
func ExportText(execs []Execution) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%-10s %-22s %-6s %-9s %-8s %s\n", "ID", "STATUS", "EXIT", "DEGRADED", "TIME", "CREATED"))
	b.WriteString(strings.Repeat("─", 80) + "\n")

	for _, e := range execs {
		id := e.ID
		if len(id) > 8 {
			id = id[:8]
		}
		degraded := ""
		if e.Degraded {
			degraded = "yes"
		}
		b.WriteString(fmt.Sprintf("%-10s %-22s %-6d %-9s %-8s %s\n",
			id, e.Status, e.ExitCode, degraded,
			(time.Duration(e.DurationMS) * time.Millisecond).String(),
			e.CreatedAt.Format(time.RFC3339)))
	}

	return b.String()
}

// ExportJSON renders executions as formatted JSON.
func ExportJSON(execs []Execution) ([]byte, error) {
	if execs == nil {
		execs = []Execution{}
	}
	return json.MarshalIndent(execs, "", "  ")
}

// ExportYAML renders executions as a YAML sequence.
func ExportYAML(execs []Execution) ([]byte, error) {
	if execs == nil {
		execs = []Execution{}
	}
	return yaml.Marshal(execs)
}
