package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/fyydbot/internal/config"
	"github.com/kalambet/fyydbot/internal/engine"
	"github.com/kalambet/fyydbot/internal/pipeline"
)

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Answer mentions until interrupted",
	Long: `Poll the Mastodon account for unread mentions and answer each one.

A status server on 127.0.0.1:<server.port> serves /health, /status and
/metrics. With --mcp the podcast search is also offered as an MCP tool on
stdin/stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runBot(withMCP)
	},
}

func init() {
	runCmd.Flags().Bool("mcp", false, "also serve the MCP stdio transport")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <request>",
	Short: "Run one search request without posting anything",
	Long: `Run the extraction, search and reply composition for one request and print
the result. Nothing is posted to Mastodon.

Examples:
  fyydbot search "Ich suche Podcasts über Kaffee aus dem letzten Jahr"
  fyydbot search --json "Logbuch Netzpolitik Folgen zu Chatkontrolle"
  fyydbot search --mcp`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		asMCP, _ := cmd.Flags().GetBool("mcp")
		if !asMCP && len(args) == 0 {
			return fmt.Errorf("a search request is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if asMCP {
			// stdout carries the MCP transport.
			cfg.Log.File = ""
		}
		defer setupLogging(cfg)()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		if err := engine.EnsureReady(ctx, a.oracle, cfg.Oracle.Model, os.Stderr); err != nil {
			return err
		}

		if asMCP {
			return serveMCP(ctx, a)
		}

		res, err := a.finder.Find(ctx, strings.Join(args, " "), nil)
		if err != nil {
			return err
		}
		if asJSON {
			return writeResultJSON(os.Stdout, res)
		}
		writeResult(os.Stdout, res)
		return nil
	},
}

func init() {
	searchCmd.Flags().Bool("json", false, "print the result as JSON")
	searchCmd.Flags().Bool("mcp", false, "serve the search as an MCP tool on stdin/stdout instead")
}

func writeResult(w io.Writer, res pipeline.Result) {
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "%s %s\n", labelColor.Sprint(label+":"), value)
		}
	}

	line("Outcome", res.Outcome.String())
	if q := res.Query; q != nil {
		line("Podcast", q.PodcastName)
		line("Keywords", q.Keywords)
		line("Date hint", q.DateHint)
		line("Date range", q.DateRange.String())
	}
	if res.Outcome == pipeline.Found || res.Outcome == pipeline.Unbuildable {
		line("Episodes", fmt.Sprintf("%d", len(res.Episodes)))
	}
	line("Timing", formatTimings(res.Timings))
	fmt.Fprintf(w, "\n%s\n", res.Text())
}

func formatTimings(t pipeline.Timings) string {
	var parts []string
	for _, p := range []struct {
		name string
		d    time.Duration
	}{
		{"extract", t.Extract},
		{"search", t.Search},
		{"compose", t.Compose},
	} {
		if p.d > 0 {
			parts = append(parts, fmt.Sprintf("%s %s", p.name, p.d.Round(time.Millisecond)))
		}
	}
	return strings.Join(parts, ", ")
}

type resultJSON struct {
	Outcome     string   `json:"outcome"`
	PodcastName string   `json:"podcast_name,omitempty"`
	Keywords    string   `json:"keywords,omitempty"`
	DateHint    string   `json:"date_hint,omitempty"`
	DateRange   string   `json:"date_range,omitempty"`
	Episodes    int      `json:"episodes"`
	Summary     string   `json:"summary,omitempty"`
	TopList     string   `json:"top_list,omitempty"`
	Replies     []string `json:"replies"`
}

func writeResultJSON(w io.Writer, res pipeline.Result) error {
	out := resultJSON{
		Outcome:  res.Outcome.String(),
		Episodes: len(res.Episodes),
		Summary:  res.Reply.Summary,
		TopList:  res.Reply.TopList,
	}
	if q := res.Query; q != nil {
		out.PodcastName = q.PodcastName
		out.Keywords = q.Keywords
		out.DateHint = q.DateHint
		out.DateRange = q.DateRange.String()
	}
	if res.Outcome == pipeline.Found {
		out.Replies = append(out.Replies, res.Reply.Summary)
		if res.Reply.TopList != "" {
			out.Replies = append(out.Replies, res.Reply.TopList)
		}
	} else {
		out.Replies = []string{res.Text()}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Inspect()

	client := newStatusClient(cfg.Server.Port)
	if err := client.health(ctx); err != nil {
		printStatus("Bot", "stopped")
	} else {
		report, err := client.status(ctx)
		if err != nil {
			printWarning("could not read status: %v", err)
		} else {
			printReport(report.Version, report.Uptime, report.NameCacheEntries, report.Counters)
		}
	}

	oracle, err := engine.New(engine.DetectConfig{
		Provider: cfg.Oracle.Provider,
		BaseURL:  cfg.Oracle.BaseURL,
		Model:    cfg.Oracle.Model,
		APIKey:   cfg.Oracle.APIKey,
	})
	switch {
	case err != nil:
		printStatus("Oracle", "misconfigured: %v", err)
	case oracle.IsRunning(ctx):
		printStatus("Oracle", "%s at %s (%s)", cfg.Oracle.Provider, cfg.Oracle.BaseURL, cfg.Oracle.Model)
	default:
		printStatus("Oracle", "not reachable at %s", cfg.Oracle.BaseURL)
	}

	printStatus("Instance", "%s", valueOr(cfg.Mastodon.Instance, "(unset)"))
	return nil
}

func printReport(version, uptime string, cacheEntries int, counters map[string]float64) {
	printStatus("Bot", "running, version %s, up %s", version, uptime)
	printStatus("Name cache", "%d podcasts", cacheEntries)

	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		printStatus(strings.TrimPrefix(k, "fyydbot_"), "%g", counters[k])
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range config.ShowAll(config.Inspect()) {
			fmt.Printf("  %s = %s  %s\n", labelColor.Sprint(k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file. Secrets (the Mastodon access
token and the oracle API key) go to the secrets file with --secret.

Valid keys: ` + strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		secret, _ := cmd.Flags().GetBool("secret")

		if secret {
			if err := config.SetSecret(key, value); err != nil {
				return err
			}
			printSuccess("Stored secret %s", key)
			return nil
		}

		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configSetCmd.Flags().Bool("secret", false, "store the value in the secrets file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "fyydbot", version)
	},
}
