package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// messageRequest mirrors adminapi's POST /messages body shape, which is used
// for both the request and the response.
type messageRequest struct {
	MTI    string            `json:"mti"`
	Fields map[string]string `json:"fields"`
}

func sendCmd() *cobra.Command {
	var (
		mti    string
		pan    string
		amount string
		stan   string
		rrn    string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Inject a message through the admin façade and print the correlated response",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			req := messageRequest{MTI: mti, Fields: map[string]string{}}
			if pan != "" {
				req.Fields["2"] = pan
			}
			if amount != "" {
				req.Fields["4"] = amount
			}
			if stan != "" {
				req.Fields["11"] = stan
			}
			if rrn != "" {
				req.Fields["37"] = rrn
			}

			body, err := json.Marshal(req)
			if err != nil {
				return fmt.Errorf("marshal request: %w", err)
			}

			resp, err := httpClient.Post(adminURL("/messages"), "application/json", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("post message: %w", err)
			}
			defer resp.Body.Close()

			payload, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("admin façade returned status %d: %s", resp.StatusCode, payload)
			}

			printMessage(payload)
			return nil
		},
	}

	cmd.Flags().StringVar(&mti, "mti", "0100", "message type indicator")
	cmd.Flags().StringVar(&pan, "pan", "", "field 2, primary account number")
	cmd.Flags().StringVar(&amount, "amount", "", "field 4, transaction amount")
	cmd.Flags().StringVar(&stan, "stan", "", "field 11, system trace audit number")
	cmd.Flags().StringVar(&rrn, "rrn", "", "field 37, retrieval reference number")

	return cmd
}

func printMessage(payload []byte) {
	if outputFormat == "json" {
		fmt.Println(string(payload))
		return
	}

	var resp messageRequest
	if err := json.Unmarshal(payload, &resp); err != nil {
		fmt.Println(string(payload))
		return
	}

	fmt.Printf("MTI: %s\n", resp.MTI)
	for field, value := range resp.Fields {
		fmt.Printf("  field %-4s %s\n", field, value)
	}
}
