package notify

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/user/ptyhub/internal/session"
)

const (
	titleTruncate = 64
	lineTruncate  = 250
)

// FormatExit renders the prose block handed to the parent session when a
// child process exits.
func FormatExit(ev session.ExitEvent) string {
	title := ev.Session.Description
	if title == "" {
		title = ev.Session.Title
	}

	lines := []string{
		"<pty_exited>",
		"ID: " + ev.Session.ID,
		"Description: " + truncate(title, titleTruncate),
		fmt.Sprintf("Exit Code: %d", ev.ExitCode),
		fmt.Sprintf("Output Lines: %d", ev.Session.LineCount),
		"Last Line: " + truncate(ansi.Strip(ev.LastLine), lineTruncate),
		"</pty_exited>",
		"",
	}
	if ev.ExitCode == 0 {
		lines = append(lines, "Use pty_read to check the full output.")
	} else {
		lines = append(lines, "Process failed. Use pty_read with the pattern parameter to search for errors in the output.")
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
