package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/metalagman/psyche/internal/config"
	"github.com/metalagman/psyche/internal/substrate"
)

const planTemplate = `# Plan

## Current Goal

Describe the goal the society should pursue.

## Tasks

- [ ] Replace this with the first task
`

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "init",
		Short:        "Initialize a psyche project",
		Long:         "Create the .psyche directory with substrate templates and a default config.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := stateDir()
			if err != nil {
				return err
			}
			log.Info().Str("dir", dir).Msg("creating psyche directory")
			if err := os.MkdirAll(filepath.Join(dir, "locks"), 0o755); err != nil {
				return fmt.Errorf("create locks dir: %w", err)
			}

			store, err := substrate.NewDir(filepath.Join(dir, "substrate"))
			if err != nil {
				return err
			}
			for _, f := range substrate.All() {
				if _, err := store.Read(f); err == nil {
					continue
				}
				content := ""
				if f == substrate.FilePlan {
					content = planTemplate
				}
				if err := store.Write(f, content); err != nil {
					return fmt.Errorf("scaffold %s: %w", f, err)
				}
			}

			configPath := filepath.Join(dir, "config.json")
			if _, err := os.Stat(configPath); err == nil {
				log.Info().Msg("config.json already exists, skipping")
			} else {
				log.Info().Str("path", configPath).Msg("installing default config")
				data, err := json.MarshalIndent(config.Default(), "", "  ")
				if err != nil {
					return fmt.Errorf("marshal default config: %w", err)
				}
				if err := os.WriteFile(configPath, data, 0o644); err != nil {
					return fmt.Errorf("write default config: %w", err)
				}
			}

			fmt.Println("psyche initialized successfully")
			return nil
		},
	}
}
