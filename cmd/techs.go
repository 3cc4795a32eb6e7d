package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apitechnicians "github.com/dispatchlab/fieldops/api/technicians"
	"github.com/dispatchlab/fieldops/config"
)

var techsTenant string

var techsCmd = &cobra.Command{
	Use:   "techs",
	Short: "Workforce related commands",
}

var techsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List live technician status from a running server",
	RunE:  runTechsStatus,
}

func init() {
	techsStatusCmd.Flags().StringVarP(&techsTenant, "tenant", "t", "", "tenant id")
	_ = techsStatusCmd.MarkFlagRequired("tenant")
	techsCmd.AddCommand(techsStatusCmd)
	rootCmd.AddCommand(techsCmd)
}

func runTechsStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	addr := cfg.Server.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	endpoint := fmt.Sprintf("http://%s/api/technicians/status?tenant_id=%s", addr, url.QueryEscape(techsTenant))
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if cfg.Server.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Server.APIToken)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			if _, ferr := fmt.Fprintf(cmd.ErrOrStderr(), "error while closing response: %v\n", err); ferr != nil {
				fmt.Println("failed to write to stderr:", ferr)
			}
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var entries []apitechnicians.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	for _, e := range entries {
		status := e.Status
		if status == "" {
			status = "unknown"
		}
		mark := ""
		if e.Fresh {
			mark = "*"
		}
		fmt.Printf("%s\t%s%s\t%d/%d\n", e.TechnicianID, status, mark, e.StopsDone, e.StopsTotal)
	}
	return nil
}
