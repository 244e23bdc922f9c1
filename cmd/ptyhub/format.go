package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"github.com/user/ptyhub/internal/session"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"

	maxLineLength = 2000
	createdLayout = "2006-01-02T15:04:05.000Z07:00"
)

type printer struct {
	out    io.Writer
	format string
}

// structured writes v as JSON or YAML and reports whether it did. Text
// output is left to the caller.
func (p *printer) structured(v any) (bool, error) {
	switch p.format {
	case outputJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		node, err := yamlNode(v)
		if err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(node); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

func (p *printer) lines(lines []string) {
	for _, line := range lines {
		fmt.Fprintln(p.out, line)
	}
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// yamlNode renders v with the same keys its JSON form uses. JSON is a
// subset of YAML, so the JSON document parses straight into a node tree;
// clearing the flow style gives block output.
func yamlNode(v any) (*yaml.Node, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	blockStyle(&doc)
	return &doc, nil
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func formatSessionInfo(info session.Info) []string {
	status := colorStatus(info)
	if info.ExitCode != nil {
		status += fmt.Sprintf(" | exit: %d", *info.ExitCode)
	}
	if info.ExitSignal != nil && *info.ExitSignal != 0 {
		status += fmt.Sprintf(" | signal: %d", *info.ExitSignal)
	}
	return []string{
		fmt.Sprintf("[%s] %s", info.ID, info.Title),
		fmt.Sprintf("  Command: %s", commandLine(info.Command, info.Args)),
		fmt.Sprintf("  Status: %s", status),
		fmt.Sprintf("  PID: %d", info.PID),
		fmt.Sprintf("  Lines: %d", info.LineCount),
		fmt.Sprintf("  Workdir: %s", info.Workdir),
		fmt.Sprintf("  Created: %s", info.CreatedAt.UTC().Format(createdLayout)),
		"",
	}
}

func commandLine(command string, args []string) string {
	return shellquote.Join(append([]string{command}, args...)...)
}

func colorStatus(info session.Info) string {
	s := string(info.Status)
	switch info.Status {
	case session.StatusRunning:
		return color.GreenString(s)
	case session.StatusKilling:
		return color.YellowString(s)
	case session.StatusKilled:
		return color.RedString(s)
	case session.StatusExited:
		if info.ExitCode != nil && *info.ExitCode != 0 {
			return color.RedString(s)
		}
		return color.CyanString(s)
	default:
		return s
	}
}

// formatLine numbers a line from 1 and cuts it at maxLineLength runes.
func formatLine(line string, lineNum int) string {
	if utf8.RuneCountInString(line) > maxLineLength {
		line = string([]rune(line)[:maxLineLength]) + "..."
	}
	return fmt.Sprintf("%05d| %s", lineNum, line)
}

func muted(format string, args ...any) string {
	return color.HiBlackString(format, args...)
}

func trimTitle(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
