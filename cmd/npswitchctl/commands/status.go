package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

type statusResponse struct {
	Acquirers int `json:"acquirers"`
	Issuers   int `json:"issuers"`
	Pending   int `json:"pending"`
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show registered acquirer/issuer counts and pending correlation entries",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := httpClient.Get(adminURL("/status"))
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			defer resp.Body.Close()

			payload, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("admin façade returned status %d: %s", resp.StatusCode, payload)
			}

			if outputFormat == "json" {
				fmt.Println(string(payload))
				return nil
			}

			var status statusResponse
			if err := json.Unmarshal(payload, &status); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}

			fmt.Printf("acquirers: %d\n", status.Acquirers)
			fmt.Printf("issuers:   %d\n", status.Issuers)
			fmt.Printf("pending:   %d\n", status.Pending)
			return nil
		},
	}
}
