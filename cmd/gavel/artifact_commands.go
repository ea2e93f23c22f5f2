package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gavel/internal/workflow"
)

func newTrackCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "track <workflow-id> <artifact-name> <artifact-id>",
		Short: "Record an artifact document under a workflow",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				ref, err := rt.Manager.TrackArtifact(cmd.Context(), args[0], args[1], args[2])
				if err != nil {
					return artifactError(args[2], lookupError(args[0], err))
				}
				gate := "no review gate"
				if ref.ReviewGate != "" {
					gate = "review gate " + ref.ReviewGate
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tracking %s as %s on %s (%s)\n", ref.ArtifactID, strings.ToUpper(strings.TrimSpace(args[1])), args[0], gate)
				return nil
			})
		},
	}
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sync <workflow-id>",
		Short: "Refresh artifact references and gate snapshots from disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				report, err := rt.Manager.SyncArtifacts(cmd.Context(), args[0])
				if err != nil {
					return lookupError(args[0], err)
				}
				if asJSON {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Synced %s: %d artifact(s) refreshed, %d missing, %d gate(s) updated\n",
					report.WorkflowID, len(report.Refreshed), len(report.Missing), len(report.Gates))
				for _, name := range report.Missing {
					fmt.Fprintf(out, "  missing: %s\n", name)
				}
				for _, key := range sortedNames(report.Errors) {
					fmt.Fprintf(out, "  error: %s: %s\n", key, report.Errors[key])
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
