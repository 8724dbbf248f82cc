package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/kalambet/fyydbot/internal/api"
	"github.com/kalambet/fyydbot/internal/composer"
	"github.com/kalambet/fyydbot/internal/fyyd"
	"github.com/kalambet/fyydbot/internal/intent"
	"github.com/kalambet/fyydbot/internal/metrics"
	"github.com/kalambet/fyydbot/internal/pipeline"
)

var ctx = context.Background()

func init() {
	color.NoColor = true
}

func newTestStatusServer(t *testing.T) *statusClient {
	t.Helper()
	m := metrics.New()
	m.Outcome("found")
	srv := httptest.NewServer(api.NewStatusHandler(&api.Status{
		Version: "1.2.3",
		Started: time.Now().Add(-time.Hour),
		Metrics: m,
	}))
	t.Cleanup(srv.Close)
	return &statusClient{baseURL: srv.URL, httpClient: srv.Client()}
}

func TestStatusClient_HealthAndStatus(t *testing.T) {
	client := newTestStatusServer(t)

	if err := client.health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}

	report, err := client.status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.Version != "1.2.3" {
		t.Errorf("version = %q", report.Version)
	}
	if report.UptimeSeconds < 3600 {
		t.Errorf("uptime_seconds = %v, want at least an hour", report.UptimeSeconds)
	}
	if report.Counters["fyydbot_searches_total{outcome=found}"] != 1 {
		t.Errorf("counters = %v", report.Counters)
	}
}

func TestStatusClient_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := &statusClient{baseURL: url, httpClient: &http.Client{Timeout: time.Second}}
	err := client.health(ctx)
	if err == nil {
		t.Fatal("expected error for a stopped server")
	}
	if !strings.Contains(err.Error(), "is fyydbot running?") {
		t.Errorf("error = %v", err)
	}
}

func TestDecodeJSON_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	client := &statusClient{baseURL: srv.URL, httpClient: srv.Client()}
	_, err := client.status(ctx)
	if err == nil || !strings.Contains(err.Error(), "server returned 500") {
		t.Fatalf("err = %v, want server returned 500", err)
	}
}

func foundResult() pipeline.Result {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	return pipeline.Result{
		Outcome: pipeline.Found,
		Query: &intent.Query{
			Keywords:  "Kaffee",
			DateHint:  "2023",
			DateRange: &intent.DateRange{Start: &start, End: &end},
		},
		Episodes: []fyyd.Episode{{ID: 1}, {ID: 2}},
		Reply:    composer.Reply{Summary: "Ich habe 2 Episoden gefunden", TopList: "1. Espresso"},
		Timings:  pipeline.Timings{Extract: 1500 * time.Millisecond, Search: 230 * time.Millisecond},
	}
}

func TestWriteResult(t *testing.T) {
	var buf bytes.Buffer
	writeResult(&buf, foundResult())
	out := buf.String()

	for _, want := range []string{
		"Outcome: found",
		"Keywords: Kaffee",
		"Date hint: 2023",
		"Date range: 2023-01-01..2023-12-31",
		"Episodes: 2",
		"Timing: extract 1.5s, search 230ms",
		"Ich habe 2 Episoden gefunden",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Podcast:") {
		t.Errorf("empty podcast name should be omitted:\n%s", out)
	}
}

func TestWriteResult_NoIntent(t *testing.T) {
	var buf bytes.Buffer
	writeResult(&buf, pipeline.Result{Outcome: pipeline.NoIntent})
	out := buf.String()

	if !strings.Contains(out, "Outcome: no_intent") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, composer.TextNotUnderstood) {
		t.Errorf("output missing apology:\n%s", out)
	}
	if strings.Contains(out, "Episodes:") {
		t.Errorf("episode count should be omitted:\n%s", out)
	}
}

func TestWriteResultJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := writeResultJSON(&buf, foundResult()); err != nil {
		t.Fatalf("writeResultJSON: %v", err)
	}

	var got resultJSON
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if got.Outcome != "found" || got.Episodes != 2 {
		t.Errorf("got %+v", got)
	}
	if len(got.Replies) != 2 || got.Replies[1] != "1. Espresso" {
		t.Errorf("replies = %v", got.Replies)
	}

	buf.Reset()
	if err := writeResultJSON(&buf, pipeline.Result{Outcome: pipeline.NotFound, Query: &intent.Query{Keywords: "x"}}); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Replies) != 1 || got.Replies[0] != composer.TextNotFound {
		t.Errorf("replies = %v", got.Replies)
	}
}

func TestFormatTimings_Empty(t *testing.T) {
	if got := formatTimings(pipeline.Timings{}); got != "" {
		t.Errorf("formatTimings = %q, want empty", got)
	}
}

func TestConfigSetCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))

	configSetCmd.Flags().Set("secret", "false")
	if err := configSetCmd.RunE(configSetCmd, []string{"bot.poll_interval", "30s"}); err != nil {
		t.Fatalf("config set: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "config", "fyydbot", "config.yaml"))
	if err != nil {
		t.Fatalf("reading config file: %v", err)
	}
	if !strings.Contains(string(data), "bot.poll_interval: 30s") {
		t.Errorf("config file = %q", data)
	}

	if err := configSetCmd.RunE(configSetCmd, []string{"mastodon.access_token", "tok"}); err == nil {
		t.Error("expected error when setting a secret without --secret")
	}

	configSetCmd.Flags().Set("secret", "true")
	defer configSetCmd.Flags().Set("secret", "false")
	if err := configSetCmd.RunE(configSetCmd, []string{"mastodon.access_token", "tok"}); err != nil {
		t.Fatalf("config set --secret: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "data", "fyydbot", "secrets.json")); err != nil {
		t.Errorf("secrets file not written: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	if got := strings.TrimSpace(buf.String()); got != "fyydbot "+version {
		t.Errorf("version output = %q", got)
	}
}

func TestRootCommands(t *testing.T) {
	want := map[string]bool{"run": false, "search": false, "status": false, "config": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestSearchRequiresRequest(t *testing.T) {
	searchCmd.Flags().Set("mcp", "false")
	if err := searchCmd.RunE(searchCmd, nil); err == nil || !strings.Contains(err.Error(), "request is required") {
		t.Fatalf("err = %v", err)
	}
}
