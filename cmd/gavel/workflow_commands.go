package main

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gavel/internal/campaign"
	"gavel/internal/workflow"
)

// errTransitionBlocked marks an advance that was refused; main exits with a
// distinct code for it.
var errTransitionBlocked = errors.New("transition blocked")

func newWorkflowCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newInitCommand(ctx),
		newStatusCommand(ctx),
		newHistoryCommand(ctx),
		newAdvanceCommand(ctx),
		newBlockCommand(ctx),
		newResumeCommand(ctx),
	}
}

func newInitCommand(ctx *commandContext) *cobra.Command {
	var createdBy string
	cmd := &cobra.Command{
		Use:   "init <workflow-id>",
		Short: "Start a campaign workflow at PRE_EVT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				wf, err := rt.Manager.Start(cmd.Context(), args[0], createdBy)
				if err != nil {
					if errors.Is(err, workflow.ErrWorkflowExists) {
						return fmt.Errorf("workflow %s already exists", strings.TrimSpace(args[0]))
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started workflow %s at %s\n", wf.ID, wf.LegislativeState)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&createdBy, "by", "human:operator", "Principal starting the workflow")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status [workflow-id]",
		Short: "Show one workflow, or every workflow",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				if len(args) == 0 {
					list, err := rt.Manager.List(cmd.Context())
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(cmd, list)
					}
					renderWorkflowList(cmd, rt, list)
					return nil
				}
				wf, err := rt.Manager.Workflow(cmd.Context(), args[0])
				if err != nil {
					return lookupError(args[0], err)
				}
				if asJSON {
					return writeJSON(cmd, wf)
				}
				renderWorkflow(cmd, rt, wf)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func renderWorkflowList(cmd *cobra.Command, rt *workflow.Runtime, list []*campaign.Workflow) {
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No workflows")
		return
	}
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(list))
	for _, wf := range list {
		rows = append(rows, []string{
			wf.ID,
			string(wf.LegislativeState),
			orchestratorLabel(wf.OrchestratorState, colorize),
			nextLabel(rt, wf.LegislativeState),
			strconv.FormatInt(wf.Version, 10),
			formatTime(wf.UpdatedAt),
		})
	}
	printTable(cmd, tableView{
		headers: []string{"Workflow", "State", "Orchestrator", "Next", "Version", "Updated"},
		rows:    rows,
		numeric: []int{4},
	})
}

func renderWorkflow(cmd *cobra.Command, rt *workflow.Runtime, wf *campaign.Workflow) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintf(out, "Workflow:     %s\n", wf.ID)
	fmt.Fprintf(out, "State:        %s\n", wf.LegislativeState)
	fmt.Fprintf(out, "Next:         %s\n", nextLabel(rt, wf.LegislativeState))
	fmt.Fprintf(out, "Orchestrator: %s\n", orchestratorLabel(wf.OrchestratorState, colorize))
	fmt.Fprintf(out, "Version:      %d\n", wf.Version)
	if wf.LastError != nil {
		fmt.Fprintf(out, "Last error:   %s %s\n", wf.LastError.ErrorCode, wf.LastError.Message)
	}

	if len(wf.Artifacts) > 0 {
		rows := make([][]string, 0, len(wf.Artifacts))
		for _, name := range sortedNames(wf.Artifacts) {
			ref := wf.Artifacts[name]
			rows = append(rows, []string{name, ref.ArtifactID, yesNo(ref.Exists), dash(ref.ReviewGate), formatTimePtr(ref.ApprovedAt)})
		}
		printTable(cmd, tableView{
			title:   "Artifacts",
			headers: []string{"Name", "Artifact", "Exists", "Gate", "Approved"},
			rows:    rows,
		})
	}
	if len(wf.ReviewGates) > 0 {
		rows := make([][]string, 0, len(wf.ReviewGates))
		for _, id := range sortedNames(wf.ReviewGates) {
			gate := wf.ReviewGates[id]
			rows = append(rows, []string{id, gateLabel(gate.State, colorize), strconv.Itoa(len(gate.PendingReviews)), strconv.Itoa(len(gate.ApprovedReviews))})
		}
		printTable(cmd, tableView{
			title:   "Review gates",
			headers: []string{"Gate", "State", "Pending", "Decided"},
			rows:    rows,
			numeric: []int{2, 3},
		})
	}
}

func nextLabel(rt *workflow.Runtime, state campaign.State) string {
	next := rt.Manager.ValidNextState(state)
	if len(next) == 0 {
		return "terminal"
	}
	names := make([]string, len(next))
	for i, s := range next {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <workflow-id>",
		Short: "Show applied transitions and recorded diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				wf, err := rt.Manager.Workflow(cmd.Context(), args[0])
				if err != nil {
					return lookupError(args[0], err)
				}
				out := cmd.OutOrStdout()
				if len(wf.StateHistory) == 0 {
					fmt.Fprintln(out, "No transitions applied")
				} else {
					rows := make([][]string, 0, len(wf.StateHistory))
					for _, entry := range wf.StateHistory {
						evidence := "-"
						if c := entry.ExternalConfirmation; c != nil {
							evidence = c.EventType
							if c.SourceReference != "" {
								evidence += " (" + c.SourceReference + ")"
							}
						}
						rows = append(rows, []string{formatTime(entry.Timestamp), string(entry.FromState), string(entry.ToState), dash(entry.ApprovedBy), evidence})
					}
					printTable(cmd, tableView{
						title:   "Transitions",
						headers: []string{"Time", "From", "To", "Approved by", "Confirmation"},
						rows:    rows,
					})
				}
				if len(wf.Diagnostics) > 0 {
					rows := make([][]string, 0, len(wf.Diagnostics))
					for _, d := range wf.Diagnostics {
						rows = append(rows, []string{formatTime(d.RecordedAt), string(d.Severity), string(d.ErrorCode), d.Message})
					}
					printTable(cmd, tableView{
						title:   "Diagnostics",
						headers: []string{"Time", "Severity", "Code", "Message"},
						rows:    rows,
					})
				}
				return nil
			})
		},
	}
}

func newAdvanceCommand(ctx *commandContext) *cobra.Command {
	var (
		summary     string
		eventType   string
		source      string
		confirmedBy string
		approvedBy  string
	)
	cmd := &cobra.Command{
		Use:   "advance <workflow-id> <target-state>",
		Short: "Request a legislative state transition",
		Long: "Request a legislative state transition. The transition is applied only when the\n" +
			"target is the next state, every required artifact exists and has cleared its gate,\n" +
			"and the external confirmation is supplied. Every blocking issue is printed.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(summary) == "" {
				return errors.New("--confirmation must describe the external event")
			}
			target, ok := campaign.ParseState(args[1])
			if !ok {
				return fmt.Errorf("unknown state %q (expected one of %s)", args[1], stateNames())
			}
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				current, err := rt.Manager.CurrentPhase(cmd.Context(), args[0])
				if err != nil {
					return lookupError(args[0], err)
				}
				event := strings.TrimSpace(eventType)
				if event == "" {
					expected, ok := rt.Table.RequiresConfirmation(current, target)
					if !ok {
						expected = "manual"
					}
					event = expected
				}
				res, err := rt.Manager.RequestTransition(cmd.Context(), workflow.TransitionRequest{
					WorkflowID: args[0],
					Target:     target,
					Confirmation: &campaign.ExternalConfirmation{
						EventType:       event,
						Summary:         strings.TrimSpace(summary),
						ConfirmedAt:     time.Now().UTC(),
						SourceReference: strings.TrimSpace(source),
						ConfirmedBy:     strings.TrimSpace(confirmedBy),
					},
					ApprovedBy: strings.TrimSpace(approvedBy),
				})
				if err != nil {
					if errors.Is(err, workflow.ErrWorkflowBusy) {
						return fmt.Errorf("workflow %s is busy; retry shortly", args[0])
					}
					return err
				}
				out := cmd.OutOrStdout()
				if !res.Success {
					fmt.Fprintf(out, "Transition %s -> %s blocked:\n", dash(string(res.From)), res.To)
					for _, issue := range res.Issues {
						fmt.Fprintf(out, "  - %s\n", issue)
					}
					return fmt.Errorf("%w with %d issue(s)", errTransitionBlocked, len(res.Issues))
				}
				fmt.Fprintf(out, "Advanced %s: %s -> %s\n", res.WorkflowID, res.From, res.To)
				for _, d := range res.Diagnostics {
					fmt.Fprintf(out, "  %s %s: %s\n", d.Severity, d.ErrorCode, d.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&summary, "confirmation", "", "Summary of the external event that confirms the transition")
	cmd.Flags().StringVar(&eventType, "event-type", "", "Confirmation event type (defaults to the one the transition requires)")
	cmd.Flags().StringVar(&source, "source", "", "Source reference for the confirmation, such as a docket URL")
	cmd.Flags().StringVar(&confirmedBy, "confirmed-by", "", "Who confirmed the external event")
	cmd.Flags().StringVar(&approvedBy, "approved-by", "", "Who approved the transition (defaults to --confirmed-by)")
	_ = cmd.MarkFlagRequired("confirmation")
	_ = cmd.MarkFlagRequired("confirmed-by")
	return cmd
}

func newBlockCommand(ctx *commandContext) *cobra.Command {
	var reason, code string
	cmd := &cobra.Command{
		Use:   "block <workflow-id>",
		Short: "Halt a workflow until it is resumed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				errorCode := campaign.ErrorCode(strings.ToUpper(strings.TrimSpace(code)))
				wf, err := rt.Manager.BlockTransition(cmd.Context(), args[0], reason, errorCode, map[string]any{"source": "cli"})
				if err != nil {
					return lookupError(args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s halted (orchestrator %s)\n", wf.ID, wf.OrchestratorState)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the workflow is halted")
	cmd.Flags().StringVar(&code, "code", "", "Error code to record (default TRANSITION_BLOCKED)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "resume <workflow-id>",
		Short: "Return a halted workflow to ACTIVE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				wf, err := rt.Manager.Resume(cmd.Context(), args[0], by)
				if err != nil {
					return lookupError(args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s is %s at %s\n", wf.ID, wf.OrchestratorState, wf.LegislativeState)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "human:operator", "Principal resuming the workflow")
	return cmd
}

func lookupError(id string, err error) error {
	if errors.Is(err, workflow.ErrWorkflowNotFound) {
		return fmt.Errorf("workflow %s not found", strings.TrimSpace(id))
	}
	return err
}

func stateNames() string {
	states := campaign.States()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func sortedNames[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
