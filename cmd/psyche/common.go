package main

import (
	"os"
	"path/filepath"

	"github.com/metalagman/psyche/internal/config"
)

// stateDir resolves .psyche under the working directory.
func stateDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, ".psyche"), nil
}

func loadConfig() (config.Config, error) {
	path := cfgFile
	if path == "" {
		path = filepath.Join(".psyche", "config.json")
	}
	return config.Load(path)
}
