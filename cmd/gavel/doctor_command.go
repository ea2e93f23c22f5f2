package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gavel/internal/notifications"
	"gavel/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, the workflow store, and gate queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			failed := 0
			rows := make([][]string, 0, len(results)+1)
			for _, r := range results {
				status := "ok"
				if !r.Passed {
					status = "FAIL"
					failed++
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			if notify {
				status, detail := "ok", "test notification sent"
				if cfg.Notifications.NtfyTopic == "" {
					detail = "no ntfy topic configured"
				} else if err := notifications.NewService(cfg).TestNotification(cmd.Context()); err != nil {
					status, detail = "FAIL", err.Error()
					failed++
				}
				rows = append(rows, []string{"Notifications", status, detail})
			}
			out := cmd.OutOrStdout()
			if ctx.configPath != "" {
				fmt.Fprintf(out, "Config: %s\n", ctx.configPath)
			}
			printTable(cmd, tableView{
				headers: []string{"Check", "Status", "Detail"},
				rows:    rows,
			})
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "Also send a test notification")
	return cmd
}
