package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Commands talking to a running server's loopback admin endpoints.

func adminURL(cmd *cobra.Command, path string) string {
	base, _ := cmd.Flags().GetString("url")
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

func adminCall(cmd *cobra.Command, method, path string, timeout time.Duration) error {
	req, err := http.NewRequestWithContext(cmd.Context(), method, adminURL(cmd, path), nil)
	if err != nil {
		return err
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func stateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the running server's session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminCall(cmd, http.MethodGet, "/admin/v1/state", 5*time.Second)
		},
	}
	cmd.Flags().String("url", "http://127.0.0.1:8080", "server base url")
	return cmd
}

func saveNowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Ask the running server to save now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminCall(cmd, http.MethodPost, "/admin/v1/save", 10*time.Second)
		},
	}
	cmd.Flags().String("url", "http://127.0.0.1:8080", "server base url")
	return cmd
}
