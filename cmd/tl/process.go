package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"transline/internal/app"
	"transline/internal/domain"
)

func processCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "process",
		Short: "Work on the process of a role",
		Long:  "Every process command acts on the (activity, role) pair given by --activity and --role.",
	}
	p.PersistentFlags().String("activity", "", "activity id")
	p.PersistentFlags().String("role", "translator", "role: client, translator or reviewer")
	_ = p.MarkPersistentFlagRequired("activity")
	p.AddCommand(processOpenCmd())
	p.AddCommand(processEditCmd())
	p.AddCommand(processUndoCmd())
	p.AddCommand(processStatusCmd())
	p.AddCommand(processCompleteCmd())
	p.AddCommand(processHistoryCmd())
	return p
}

// target reads the activity and role shared by every process subcommand.
func target(cmd *cobra.Command) (string, domain.Role, error) {
	activityID, _ := cmd.Flags().GetString("activity")
	roleName, _ := cmd.Flags().GetString("role")
	role, err := domain.ParseRole(roleName)
	if err != nil {
		return "", "", err
	}
	return activityID, role, nil
}

func processOpenCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open or fetch the process of a role",
		Long:  "Translators are identified by their external user id, reviewers by their API key; clients need no identifier.",
		RunE: func(cmd *cobra.Command, args []string) error {
			activityID, role, err := target(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Service.GetOrCreateProcess(ctx, activityID, role, user)
				if err != nil {
					return err
				}
				return printJSONOrTable(p.Snapshot())
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user identifier (external id or API key)")
	return cmd
}

func processEditCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Change the text of a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			activityID, role, err := target(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ok, err := a.Service.ChangeText(ctx, activityID, role, text)
				if err != nil {
					return err
				}
				return printResult(ok, a.Service.Status(ctx, activityID, role))
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "new text")
	return cmd
}

func processUndoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Restore the most recent saved version",
		RunE: func(cmd *cobra.Command, args []string) error {
			activityID, role, err := target(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ok, err := a.Service.RestoreLastVersion(ctx, activityID, role)
				if err != nil {
					return err
				}
				return printResult(ok, a.Service.Status(ctx, activityID, role))
			})
		},
	}
	return cmd
}

func processStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status seen by a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			activityID, role, err := target(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st := a.Service.Status(ctx, activityID, role)
				if st == nil {
					return fmt.Errorf("%s/%s: %w", activityID, role, domain.ErrProcessNotFound)
				}
				return printJSONOrTable(st)
			})
		},
	}
	return cmd
}

func processCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Complete a process and its document",
		RunE: func(cmd *cobra.Command, args []string) error {
			activityID, role, err := target(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ok, err := a.Service.CompleteProcess(ctx, activityID, role)
				if err != nil {
					return err
				}
				return printResult(ok, a.Service.Status(ctx, activityID, role))
			})
		},
	}
	return cmd
}

func processHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved versions, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			activityID, role, err := target(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				versions, err := a.Service.History(ctx, activityID, role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(versions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Captured", "Text"})
				for i, v := range versions {
					tw.AppendRow(table.Row{i + 1, v.CapturedAt, v.Text})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func printResult(applied bool, st *domain.DeployStatus) error {
	return printJSONOrTable(map[string]any{"applied": applied, "status": st})
}
