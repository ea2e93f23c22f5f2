package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gavel/internal/artifacts"
	"gavel/internal/campaign"
	"gavel/internal/workflow"
)

func newReviewCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newSubmitCommand(ctx),
		newDecisionCommand(ctx, campaign.DecisionApprove),
		newDecisionCommand(ctx, campaign.DecisionReject),
	}
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <gate-id> <artifact-id>",
		Short: "Queue an artifact for review at a gate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				review, err := rt.Manager.SubmitForReview(cmd.Context(), args[0], args[1])
				if err != nil {
					return artifactError(args[1], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s for review (review %s)\n", review.ArtifactID, review.ReviewID)
				return nil
			})
		},
	}
}

func newDecisionCommand(ctx *commandContext, decision campaign.Decision) *cobra.Command {
	var by, rationale string
	verb := strings.ToLower(string(decision))
	cmd := &cobra.Command{
		Use:   verb + " <gate-id> <artifact-id>",
		Short: fmt.Sprintf("Record a human %s decision at a review gate", verb),
		Long: "Record a review decision. The decision maker is given as kind:role, for example\n" +
			"human:legal_reviewer, and must hold one of the roles the gate requires.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *workflow.Runtime) error {
				review, err := rt.Manager.Decide(cmd.Context(), workflow.DecisionRequest{
					Gate:       args[0],
					ArtifactID: args[1],
					Decision:   decision,
					By:         by,
					Rationale:  rationale,
				})
				if err != nil {
					if errors.Is(err, workflow.ErrRoleMismatch) {
						return fmt.Errorf("decision refused: %w", err)
					}
					return artifactError(args[1], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s for %s at %s by %s\n", review.Decision, review.ArtifactID, strings.ToUpper(strings.TrimSpace(args[0])), review.DecisionBy)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "Decision maker as kind:role")
	cmd.Flags().StringVar(&rationale, "rationale", "", "Why the decision was made")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func artifactError(id string, err error) error {
	if errors.Is(err, artifacts.ErrNotFound) {
		return fmt.Errorf("artifact %s not found in any artifact directory", strings.TrimSpace(id))
	}
	return err
}
