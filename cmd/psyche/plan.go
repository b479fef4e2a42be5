package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/metalagman/psyche/internal/plan"
	"github.com/metalagman/psyche/internal/substrate"
)

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect and update the plan",
	}
	cmd.AddCommand(planShowCmd())
	cmd.AddCommand(planNextCmd())
	cmd.AddCommand(planCompleteCmd())
	return cmd
}

func openSubstrate() (*substrate.Dir, error) {
	dir, err := stateDir()
	if err != nil {
		return nil, err
	}
	return substrate.NewDir(filepath.Join(dir, "substrate"))
}

func readPlan() (string, error) {
	store, err := openSubstrate()
	if err != nil {
		return "", err
	}
	md, err := store.Read(substrate.FilePlan)
	if err != nil {
		return "", fmt.Errorf("read plan: %w", err)
	}
	return md, nil
}

func planShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "show",
		Short:        "Print the parsed task tree",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := readPlan()
			if err != nil {
				return err
			}
			if goal := plan.CurrentGoal(md); goal != "" {
				fmt.Printf("Goal: %s\n\n", goal)
			}
			tasks := plan.Parse(md)
			if len(tasks) == 0 {
				fmt.Println("No tasks.")
				return nil
			}
			printTasks(tasks, 0)
			return nil
		},
	}
}

func printTasks(tasks []*plan.Task, depth int) {
	for _, t := range tasks {
		marker := " "
		switch t.Status {
		case plan.StatusComplete:
			marker = "x"
		case plan.StatusDeferred:
			marker = "~"
		}
		fmt.Printf("%s[%s] %s %s\n", strings.Repeat("  ", depth), marker, t.ID, t.Title)
		printTasks(t.Children, depth+1)
	}
}

func planNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "next",
		Short:        "Show the next actionable task",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := readPlan()
			if err != nil {
				return err
			}
			next := plan.NextActionable(plan.Parse(md), nil)
			if next == nil {
				fmt.Println("Nothing actionable.")
				return nil
			}
			fmt.Printf("%s %s\n", next.ID, next.Title)
			return nil
		},
	}
}

func planCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "complete <task-id>",
		Short:        "Mark a task complete",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSubstrate()
			if err != nil {
				return err
			}
			md, err := store.Read(substrate.FilePlan)
			if err != nil {
				return fmt.Errorf("read plan: %w", err)
			}
			updated, err := plan.MarkComplete(md, args[0])
			if err != nil {
				return err
			}
			if updated == md {
				fmt.Printf("%s already complete\n", args[0])
				return nil
			}
			if err := store.Write(substrate.FilePlan, updated); err != nil {
				return err
			}
			fmt.Printf("%s marked complete\n", args[0])
			return nil
		},
	}
}
