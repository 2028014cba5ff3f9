package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aescanero/dagrun/pkg/domain"
)

var statusIcons = map[domain.JobStatus]string{
	domain.JobStatusSucceeded: "✅",
	domain.JobStatusFailed:    "❌",
	domain.JobStatusSkipped:   "⏭️",
	domain.JobStatusCancelled: "🚫",
	domain.JobStatusRunning:   "🔄",
}

// Markdown renders a human-readable run summary.
func Markdown(r *domain.RunReport) string {
	var sb strings.Builder

	name := r.Workflow
	if name == "" {
		name = r.RunID
	}
	fmt.Fprintf(&sb, "# %s\n\n", name)
	fmt.Fprintf(&sb, "- **Run:** `%s`\n", r.RunID)
	fmt.Fprintf(&sb, "- **Status:** %s\n", r.Status)
	if r.Reason != "" {
		fmt.Fprintf(&sb, "- **Reason:** %s\n", r.Reason)
	}
	if r.Duration != "" {
		fmt.Fprintf(&sb, "- **Duration:** %s\n", r.Duration)
	}
	if r.Error != "" {
		fmt.Fprintf(&sb, "- **Error:** %s\n", escape(r.Error))
	}

	if len(r.Jobs) == 0 {
		return sb.String()
	}

	sb.WriteString("\n| Job | Status | Duration | Details |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, j := range r.Jobs {
		icon := statusIcons[j.Status]
		if icon == "" {
			icon = "⏳"
		}
		details := j.Error
		if details == "" && j.Reason != "" {
			details = string(j.Reason)
		}
		fmt.Fprintf(&sb, "| %s | %s %s | %s | %s |\n",
			escape(string(j.ID)), icon, j.Status, j.Duration, escape(details))
	}

	var outputs []string
	for _, j := range r.Jobs {
		names := make([]string, 0, len(j.Outputs))
		for n := range j.Outputs {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			outputs = append(outputs, fmt.Sprintf("| %s | %s | `%s` |", escape(string(j.ID)), n, escape(j.Outputs[n])))
		}
	}
	if len(outputs) > 0 {
		sb.WriteString("\n## Outputs\n\n| Job | Name | Value |\n|---|---|---|\n")
		sb.WriteString(strings.Join(outputs, "\n"))
		sb.WriteString("\n")
	}
	return sb.String()
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
