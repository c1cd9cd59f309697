package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var reportAddr string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the summary of a running agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(reportAddr + "/api/v1/summary")
		if err != nil {
			return fmt.Errorf("reaching agent at %s: %w", reportAddr, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("agent returned status %d", resp.StatusCode)
		}

		var pretty json.RawMessage = body
		out, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportAddr, "addr", "http://localhost:9477", "admin API base URL")
}
