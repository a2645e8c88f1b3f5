// Package report renders workflow results for the terminal. It is a
// pure presentation layer: it never talks to the network and never
// mutates the result it is given.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"suna-client/internal/client"
)

const (
	previewEntries = 5
	previewWidth   = 100
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"})
	partialStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "130", Dark: "214"})
	failureStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "124", Dark: "196"})
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "246"})
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "242"})
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "250", Dark: "238"})
)

// Render writes the final structured report for one workflow
// invocation: outcome banner, every identifier resolved so far, then
// the transcript, stream and artifact sections that apply.
func Render(w io.Writer, result *client.WorkflowResult) {
	rule := ruleStyle.Render(strings.Repeat("=", 72))

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, banner(result))
	fmt.Fprintln(w, rule)

	writeIdentifiers(w, result)

	if result.Err != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Error:"), result.Err)
	}

	writeMessages(w, result.Messages)
	writeEvents(w, result.Events)
	writeFiles(w, result.Files)
	writeArtifact(w, result.Artifact)

	fmt.Fprintln(w, rule)
}

func banner(result *client.WorkflowResult) string {
	op := strings.ToUpper(result.Operation)
	switch result.Outcome {
	case client.OutcomeSuccess:
		return successStyle.Render(op + " COMPLETED")
	case client.OutcomePartial:
		return partialStyle.Render(op + " PARTIALLY COMPLETED")
	default:
		return failureStyle.Render(op + " FAILED")
	}
}

func writeIdentifiers(w io.Writer, result *client.WorkflowResult) {
	rows := []struct {
		label string
		value string
	}{
		{"Invocation", result.InvocationID},
		{"User", result.UserEmail},
		{"Account ID", result.AccountID},
		{"Thread ID", result.ThreadID},
		{"Project ID", result.ProjectID},
		{"Project", result.ProjectName},
		{"Agent Run ID", result.AgentRunID},
		{"Sandbox ID", result.SandboxID},
		{"Run status", result.RunStatus},
		{"Stop status", result.StopStatus},
		{"Delete status", result.DeleteStatus},
		{"Stream state", string(result.StreamState)},
		{"VNC URL", result.VNCURL},
	}
	for _, row := range rows {
		if row.value == "" {
			continue
		}
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", row.label+":")), row.value)
	}
}

func writeMessages(w io.Writer, messages []client.Message) {
	if len(messages) == 0 {
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Messages (%d, last %d shown)", len(messages), min(previewEntries, len(messages)))))
	for _, msg := range tail(messages) {
		preview := truncate.StringWithTail(oneLine(msg.ContentText()), previewWidth, "…")
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("["+msg.Type+"]"), preview)
	}
}

func writeEvents(w io.Writer, events []map[string]any) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Stream events (%d, last %d shown)", len(events), min(previewEntries, len(events)))))
	for _, event := range tail(events) {
		eventType, _ := event["type"].(string)
		if eventType == "" {
			eventType = "raw"
		}
		detail, _ := event["message"].(string)
		if detail == "" {
			data, _ := json.Marshal(event)
			detail = string(data)
		}
		preview := truncate.StringWithTail(oneLine(detail), previewWidth, "…")
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("["+eventType+"]"), preview)
	}
}

func writeFiles(w io.Writer, files []client.DownloadedFile) {
	if len(files) == 0 {
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Downloaded files (%d)", len(files))))
	for _, file := range files {
		fmt.Fprintf(w, "  %s (%d bytes)\n", file.Path, len(file.Content))
	}
}

func writeArtifact(w io.Writer, artifact map[string]any) {
	if artifact == nil {
		return
	}
	fmt.Fprintln(w, titleStyle.Render("Extracted artifact"))
	pretty, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "  %v\n", artifact)
		return
	}
	fmt.Fprintln(w, string(pretty))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func tail[T any](items []T) []T {
	if len(items) <= previewEntries {
		return items
	}
	return items[len(items)-previewEntries:]
}
