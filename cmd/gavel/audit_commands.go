package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gavel/internal/audit"
	"gavel/internal/campaign"
	"gavel/internal/workflow"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Check that approvals are backed by gate decisions",
	}
	auditCmd.AddCommand(newAuditCheckCommand(ctx))
	auditCmd.AddCommand(newAuditSweepCommand(ctx))
	return auditCmd
}

func newAuditCheckCommand(ctx *commandContext) *cobra.Command {
	var gate string
	cmd := &cobra.Command{
		Use:   "check <artifact-id>",
		Short: "Check one artifact's approval against its gate queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				check := rt.Audit.CheckDecisionLogCompleteness(cmd.Context(), args[0], gate)
				out := cmd.OutOrStdout()
				if check.Complete {
					fmt.Fprintf(out, "Audit complete for %s\n", args[0])
					return nil
				}
				fmt.Fprintf(out, "Audit incomplete: %s\n", check.Reason)
				return errors.New("audit incomplete")
			})
		},
	}
	cmd.Flags().StringVar(&gate, "gate", "", "Gate to check against (defaults to the artifact's requires_review)")
	return cmd
}

func newAuditSweepCommand(ctx *commandContext) *cobra.Command {
	var watch, asJSON bool
	cmd := &cobra.Command{
		Use:   "sweep [workflow-id]",
		Short: "Audit every artifact, or one workflow's tracked artifacts",
		Long: "Audit every artifact document, or one workflow's tracked artifacts. With --watch\n" +
			"the sweep re-runs whenever a gate queue or artifact document changes.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				sweep := func(ctx context.Context) (audit.SweepReport, error) {
					var wf *campaign.Workflow
					if len(args) == 1 {
						loaded, err := rt.Manager.Workflow(ctx, args[0])
						if err != nil {
							return audit.SweepReport{}, lookupError(args[0], err)
						}
						wf = loaded
					}
					return rt.Audit.Sweep(ctx, wf)
				}
				out := cmd.OutOrStdout()

				if !watch {
					report, err := sweep(cmd.Context())
					if err != nil {
						return err
					}
					if asJSON {
						if err := writeJSON(cmd, report); err != nil {
							return err
						}
					} else {
						printSweep(out, report)
					}
					if !report.Clean() {
						return fmt.Errorf("audit sweep found %d incomplete approval(s)", report.Incomplete)
					}
					return nil
				}

				watchCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				run := func(ctx context.Context) {
					report, err := sweep(ctx)
					if err != nil {
						if !errors.Is(err, context.Canceled) {
							fmt.Fprintf(cmd.ErrOrStderr(), "sweep failed: %v\n", err)
						}
						return
					}
					fmt.Fprintf(out, "[%s] ", time.Now().UTC().Format(time.RFC3339))
					printSweep(out, report)
				}
				run(watchCtx)
				dirs := append(rt.Locator.Dirs(), rt.Queues.Dir())
				debounce := time.Duration(rt.Config.Enforcement.SweepDebounceMillis) * time.Millisecond
				fmt.Fprintf(out, "Watching %d director(ies); press Ctrl+C to stop\n", len(dirs))
				return audit.Watch(watchCtx, dirs, debounce, run)
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-run the sweep when gate queues or artifacts change")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON (ignored with --watch)")
	return cmd
}

func printSweep(out io.Writer, report audit.SweepReport) {
	scope := "all artifacts"
	if report.WorkflowID != "" {
		scope = "workflow " + report.WorkflowID
	}
	fmt.Fprintf(out, "Audit sweep of %s: %d checked, %d incomplete, %d drifted\n", scope, report.Checked, report.Incomplete, report.Drifted)
	for _, d := range report.Diagnostics {
		fmt.Fprintf(out, "  %s %s: %s\n", d.Severity, d.ErrorCode, d.Message)
	}
}
