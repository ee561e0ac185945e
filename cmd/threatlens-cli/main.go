package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aquasecurity/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/venatrix/threatlens/internal/core/domain"
)

var (
	serverURL string
	authToken string
)

func main() {
	root := &cobra.Command{
		Use:   "threatlens-cli",
		Short: "Query and control a running ThreatLens instance",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("THREATLENS_URL", "http://localhost:8080"), "ThreatLens API base URL")
	root.PersistentFlags().StringVar(&authToken, "token", os.Getenv("THREATLENS_TOKEN"), "API bearer token")

	root.AddCommand(runCmd(), stopCmd(), statusCmd(), reportsCmd(), indicatorsCmd(), campaignsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("❌ %v", err))
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trigger a pipeline run (from providers, or from a JSON file of raw reports)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var body io.Reader
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				body = bytes.NewReader(data)
			}

			var result struct {
				Success        bool     `json:"success"`
				ProcessedCount int      `json:"processed_count"`
				CampaignCount  int      `json:"campaign_count"`
				Errors         []string `json:"errors"`
				Notes          []string `json:"notes"`
			}
			if err := call(http.MethodPost, "/api/v1/pipeline/run", body, &result); err != nil {
				return err
			}

			if result.Success {
				color.Green("✅ Run complete: %d reports processed, %d campaigns detected", result.ProcessedCount, result.CampaignCount)
			} else {
				color.Red("❌ Run failed")
			}
			for _, e := range result.Errors {
				color.Red("  • %s", e)
			}
			for _, n := range result.Notes {
				color.Yellow("  • %s", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with an array of raw reports")
	return cmd
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Force-stop an in-flight pipeline run",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]interface{}
			if err := call(http.MethodPost, "/api/v1/pipeline/stop", nil, &resp); err != nil {
				return err
			}
			color.Yellow("🛑 Pipeline stopped")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline status and statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status struct {
				Processing bool `json:"processing"`
				Stats      struct {
					TotalReports    int            `json:"total_reports"`
					TotalIndicators int            `json:"total_indicators"`
					ByType          map[string]int `json:"indicators_by_type"`
					ActiveCampaigns int            `json:"active_campaigns"`
					LastRun         time.Time      `json:"last_run"`
					RunCount        int            `json:"run_count"`
					ErrorCount      int            `json:"error_count"`
				} `json:"stats"`
			}
			if err := call(http.MethodGet, "/api/v1/pipeline/status", nil, &status); err != nil {
				return err
			}

			if status.Processing {
				color.Yellow("⏳ Pipeline is processing")
			} else {
				color.Green("✅ Pipeline is idle")
			}

			tw := table.New(os.Stdout)
			tw.SetHeaders("Metric", "Value")
			tw.AddRow("Reports", strconv.Itoa(status.Stats.TotalReports))
			tw.AddRow("Indicators", strconv.Itoa(status.Stats.TotalIndicators))
			tw.AddRow("Active campaigns", strconv.Itoa(status.Stats.ActiveCampaigns))
			tw.AddRow("Runs", strconv.Itoa(status.Stats.RunCount))
			tw.AddRow("Errors", strconv.Itoa(status.Stats.ErrorCount))
			if !status.Stats.LastRun.IsZero() {
				tw.AddRow("Last run", status.Stats.LastRun.Local().Format(time.RFC1123))
			}
			tw.Render()
			return nil
		},
	}
}

func reportsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List stored reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "csv" {
				return rawDump("/api/v1/reports?format=csv")
			}

			var reports []domain.Report
			if err := call(http.MethodGet, "/api/v1/reports", nil, &reports); err != nil {
				return err
			}

			tw := table.New(os.Stdout)
			tw.SetHeaders("Title", "Source", "Severity", "Category", "Tags", "Timestamp")
			for _, r := range reports {
				tw.AddRow(
					r.Title,
					r.Source,
					colorizeSeverity(r.Severity),
					r.Category,
					strings.Join(r.Tags, ", "),
					r.Timestamp.Format("2006-01-02 15:04"),
				)
			}
			tw.Render()
			fmt.Printf("Total: %d\n", len(reports))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table or csv)")
	return cmd
}

func indicatorsCmd() *cobra.Command {
	var (
		format  string
		query   string
		iocType string
		minConf float64
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "indicators",
		Short: "List or search extracted indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := []string{}
			if query != "" {
				params = append(params, "q="+query)
			}
			if iocType != "" {
				params = append(params, "type="+iocType)
			}
			if minConf > 0 {
				params = append(params, fmt.Sprintf("min_confidence=%.2f", minConf))
			}
			if limit > 0 {
				params = append(params, fmt.Sprintf("limit=%d", limit))
			}

			path := "/api/v1/indicators"
			if len(params) > 0 {
				path += "?" + strings.Join(params, "&")
			}

			if format == "csv" {
				sep := "?"
				if len(params) > 0 {
					sep = "&"
				}
				return rawDump(path + sep + "format=csv")
			}

			var indicators []domain.Indicator
			if err := call(http.MethodGet, path, nil, &indicators); err != nil {
				return err
			}

			tw := table.New(os.Stdout)
			tw.SetHeaders("Type", "Value", "Confidence", "First Seen")
			for _, ind := range indicators {
				tw.AddRow(
					string(ind.Type),
					ind.Value,
					fmt.Sprintf("%.2f", ind.Confidence),
					ind.FirstSeen.Format("2006-01-02"),
				)
			}
			tw.Render()
			fmt.Printf("Total: %d\n", len(indicators))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table or csv)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Full-text query over values and contexts")
	cmd.Flags().StringVarP(&iocType, "type", "t", "", "Filter by indicator type (ip, domain, url, hash, email)")
	cmd.Flags().Float64Var(&minConf, "min-confidence", 0, "Minimum confidence score")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	return cmd
}

func campaignsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "campaigns",
		Short: "List detected campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Count     int               `json:"count"`
				Campaigns []domain.Campaign `json:"campaigns"`
			}
			if err := call(http.MethodGet, "/api/v1/campaigns", nil, &resp); err != nil {
				return err
			}

			tw := table.New(os.Stdout)
			tw.SetHeaders("Name", "Severity", "Confidence", "Reports", "Actors", "Sectors")
			for _, c := range resp.Campaigns {
				tw.AddRow(
					c.Name,
					colorizeSeverity(c.Severity),
					fmt.Sprintf("%d%%", c.Confidence),
					strconv.Itoa(len(c.ReportIDs)),
					strings.Join(c.ThreatActors, ", "),
					strings.Join(c.TargetSectors, ", "),
				)
			}
			tw.Render()
			fmt.Printf("Total: %d\n", resp.Count)
			return nil
		},
	}
}

var severityColors = map[domain.Severity]func(format string, a ...interface{}) string{
	domain.SeverityLow:      color.BlueString,
	domain.SeverityMedium:   color.YellowString,
	domain.SeverityHigh:     color.HiRedString,
	domain.SeverityCritical: color.RedString,
}

func colorizeSeverity(s domain.Severity) string {
	if fn, ok := severityColors[s]; ok {
		return fn("%s", string(s))
	}
	return string(s)
}

// call performs one API request and decodes the JSON response into out.
func call(method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// rawDump streams a response body straight to stdout, for CSV output.
func rawDump(path string) error {
	req, err := http.NewRequest(http.MethodGet, serverURL+path, nil)
	if err != nil {
		return err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
