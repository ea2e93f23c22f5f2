package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"gavel/internal/campaign"
)

// tableView is one rendered table. Columns listed in numeric are right
// aligned; colorize adds bold headers and state colors.
type tableView struct {
	title    string
	headers  []string
	rows     [][]string
	numeric  []int
	colorize bool
}

func (v tableView) render() string {
	if len(v.headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	style := table.StyleRounded
	if v.colorize {
		style.Color.Header = text.Colors{text.Bold}
		style.Title.Colors = text.Colors{text.Bold}
	}
	tw.SetStyle(style)
	if v.title != "" {
		tw.SetTitle(v.title)
	}

	header := make(table.Row, len(v.headers))
	for i, h := range v.headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range v.rows {
		r := make(table.Row, len(v.headers))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(v.numeric))
	for _, col := range v.numeric {
		configs = append(configs, table.ColumnConfig{Number: col + 1, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func printTable(cmd *cobra.Command, v tableView) {
	out := cmd.OutOrStdout()
	v.colorize = v.colorize || shouldColorize(out)
	io.WriteString(out, v.render()+"\n")
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shouldColorize(writer io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func orchestratorLabel(state campaign.OrchestratorState, colorize bool) string {
	if !colorize {
		return string(state)
	}
	switch state {
	case campaign.OrchestratorError:
		return text.FgRed.Sprint(string(state))
	case campaign.OrchestratorPaused:
		return text.FgYellow.Sprint(string(state))
	case campaign.OrchestratorActive:
		return text.FgGreen.Sprint(string(state))
	default:
		return string(state)
	}
}

func gateLabel(state campaign.GateState, colorize bool) string {
	if !colorize {
		return string(state)
	}
	switch state {
	case campaign.GateApproved:
		return text.FgGreen.Sprint(string(state))
	case campaign.GateRejected:
		return text.FgRed.Sprint(string(state))
	default:
		return text.FgYellow.Sprint(string(state))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
