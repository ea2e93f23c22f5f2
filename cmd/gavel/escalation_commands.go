package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gavel/internal/escalation"
	"gavel/internal/workflow"
)

func newEscalateCommand(ctx *commandContext) *cobra.Command {
	var (
		reason     string
		severity   string
		workflowID string
		confidence float64
		drift      float64
	)
	cmd := &cobra.Command{
		Use:   "escalate",
		Short: "Record an escalation for human attention",
		Long: "Record an escalation. Triggers are derived from the reason and from the\n" +
			"confidence and assumption drift values when given. Unknown severities are\n" +
			"recorded as HIGH.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := escalation.Request{
				Reason:     reason,
				Severity:   escalation.Severity(strings.ToUpper(strings.TrimSpace(severity))),
				WorkflowID: workflowID,
				Context:    map[string]any{"source": "cli"},
			}
			if cmd.Flags().Changed("confidence") {
				if err := requireFinite("confidence", confidence); err != nil {
					return err
				}
				req.Confidence = &confidence
			}
			if cmd.Flags().Changed("drift") {
				if err := requireFinite("drift", drift); err != nil {
					return err
				}
				req.AssumptionDrift = &drift
			}
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				entry, err := rt.Escalations.Escalate(cmd.Context(), req)
				if err != nil {
					return err
				}
				triggers := "none"
				if len(entry.Triggers) > 0 {
					names := make([]string, len(entry.Triggers))
					for i, t := range entry.Triggers {
						names[i] = string(t)
					}
					triggers = strings.Join(names, ", ")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Escalation %s recorded at %s (triggers: %s)\n", entry.ID, entry.Severity, triggers)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "What needs human attention")
	cmd.Flags().StringVar(&severity, "severity", string(escalation.SeverityHigh), "LOW, MEDIUM, HIGH, or CRITICAL")
	cmd.Flags().StringVar(&workflowID, "workflow", "", "Workflow the escalation concerns")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "Confidence of the automated output, 0 to 1")
	cmd.Flags().Float64Var(&drift, "drift", 0, "Assumption drift, 0 to 1")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newEscalationsCommand(ctx *commandContext) *cobra.Command {
	escalationsCmd := &cobra.Command{
		Use:   "escalations",
		Short: "Inspect the escalation log",
	}

	var asJSON bool
	var severity string
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded escalations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter escalation.Severity
			if strings.TrimSpace(severity) != "" {
				parsed, ok := escalation.ParseSeverity(severity)
				if !ok {
					return fmt.Errorf("unknown severity %q", severity)
				}
				filter = parsed
			}
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				entries, err := rt.Escalations.ReadAll()
				if err != nil {
					return err
				}
				selected := make([]escalation.Entry, 0, len(entries))
				for _, e := range entries {
					if filter == "" || e.Severity == filter {
						selected = append(selected, e)
					}
				}
				if asJSON {
					return writeJSON(cmd, selected)
				}
				if len(selected) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No escalations")
					return nil
				}
				rows := make([][]string, 0, len(selected))
				for _, e := range selected {
					rows = append(rows, []string{
						formatTime(e.Timestamp),
						string(e.Severity),
						dash(e.WorkflowID),
						strconv.Itoa(len(e.Triggers)),
						e.Reason,
					})
				}
				printTable(cmd, tableView{
					headers: []string{"Time", "Severity", "Workflow", "Triggers", "Reason"},
					rows:    rows,
					numeric: []int{3},
				})
				return nil
			})
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	list.Flags().StringVar(&severity, "severity", "", "Only show entries of this severity")
	escalationsCmd.AddCommand(list)
	return escalationsCmd
}

func requireFinite(flag string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("--%s must be a finite number, got %v", flag, v)
	}
	return nil
}
