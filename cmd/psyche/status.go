package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:          "status",
		Short:        "Show the running daemon's status",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				addr = cfg.Web.Addr
			}

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(fmt.Sprintf("http://%s/status", addr))
			if err != nil {
				return fmt.Errorf("query daemon at %s: %w", addr, err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read status response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon answered %s: %s", resp.Status, body)
			}

			var pretty json.RawMessage = body
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				fmt.Println(string(body))
				return nil
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "control plane address (defaults to the configured one)")
	return cmd
}
