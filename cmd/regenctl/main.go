package main

// #region imports
import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// #endregion

// #region globals

var (
	addr    string
	jsonOut bool

	httpClient = &http.Client{Timeout: 10 * time.Minute}
)

// #endregion

// #region main

func main() {
	root := &cobra.Command{
		Use:          "regenctl",
		Short:        "Operator CLI for the regeneration controller",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr",
		envOr("REGEN_ADDR", "http://127.0.0.1:8085"), "controller address")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "raw JSON output")

	root.AddCommand(triggerCmd(), statusCmd(), charterCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion main

// #region trigger

func triggerCmd() *cobra.Command {
	var trigger string
	cmd := &cobra.Command{
		Use:   "trigger <system>",
		Short: "Run one cycle for a system and wait for its verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]string{"trigger": trigger})
			resp, err := call(http.MethodPost,
				fmt.Sprintf("/systems/%s/cycles", args[0]), body)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(resp)
			}

			fmt.Printf("code: %s\n", resp.Code)
			if resp.Error != "" {
				fmt.Printf("error: %s\n", resp.Error)
			}
			if rec, ok := resp.Record.(map[string]interface{}); ok {
				fmt.Printf("cycle: %v\nverdict: %v\nreason: %v\n",
					rec["cycle_id"], rec["verdict"], rec["reason"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&trigger, "reason", "manual", "trigger label recorded on the cycle")
	return cmd
}

// #endregion

// #region status

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <system>",
		Short: "Show the controller's current view of a system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(http.MethodGet,
				fmt.Sprintf("/systems/%s/status", args[0]), nil)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

// #endregion

// #region charter

func charterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charter",
		Short: "Inspect or revise a system's charter",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <system>",
		Short: "Show the active charter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(http.MethodGet,
				fmt.Sprintf("/systems/%s/charter", args[0]), nil)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	})

	var deltasJSON string
	propose := &cobra.Command{
		Use:   "propose <system>",
		Short: "Propose a charter revision from JSON deltas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deltasJSON == "" {
				return fmt.Errorf("--deltas is required, e.g. '{\"thresholds\":{\"validation\":0.3}}'")
			}
			resp, err := call(http.MethodPost,
				fmt.Sprintf("/systems/%s/charter", args[0]), []byte(deltasJSON))
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	propose.Flags().StringVar(&deltasJSON, "deltas", "", "revision deltas as JSON")
	cmd.AddCommand(propose)

	return cmd
}

// #endregion

// #region http

// apiResponse mirrors the controller's response envelope loosely; the CLI
// never needs the full record types.
type apiResponse struct {
	Code    string      `json:"code"`
	Error   string      `json:"error,omitempty"`
	Record  interface{} `json:"record,omitempty"`
	Status  interface{} `json:"status,omitempty"`
	Charter interface{} `json:"charter,omitempty"`
}

func call(method, path string, body []byte) (apiResponse, error) {
	req, err := http.NewRequest(method, addr+path, bytes.NewReader(body))
	if err != nil {
		return apiResponse{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := httpClient.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return apiResponse{}, err
	}

	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return apiResponse{}, fmt.Errorf("bad response (%d): %s", httpResp.StatusCode, string(data))
	}
	return resp, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion
