package intent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/fyydbot/internal/engine"
)

// mockOracle streams canned responses, one per call, in word-sized chunks.
type mockOracle struct {
	mu        sync.Mutex
	responses []string
	err       error
	delay     time.Duration
	calls     [][]engine.Message
	opts      []engine.Options
}

func (m *mockOracle) Stream(ctx context.Context, model string, messages []engine.Message, opts engine.Options, onChunk func(string) error) error {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, messages)
	m.opts = append(m.opts, opts)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.err != nil {
		return m.err
	}
	if idx >= len(m.responses) {
		return fmt.Errorf("unexpected oracle call %d", idx+1)
	}
	for _, piece := range strings.SplitAfter(m.responses[idx], " ") {
		if err := onChunk(piece); err != nil {
			return err
		}
	}
	return nil
}

var fixedNow = time.Date(2024, time.June, 12, 9, 30, 0, 0, time.UTC)

func newTestExtractor(o *mockOracle) *Extractor {
	return NewExtractor(o, "llama3.2").WithClock(func() time.Time { return fixedNow })
}

func TestExtract_NameAndKeywords(t *testing.T) {
	mock := &mockOracle{responses: []string{
		`Sure! Here is the JSON: {"PodcastName": "Serial Podcast", "Keywords": "murder", "Date": ""} User: thanks`,
	}}
	q := newTestExtractor(mock).Extract(context.Background(), "Serial Podcast murder")

	if q == nil {
		t.Fatal("Extract() = nil, want query")
	}
	if q.PodcastName != "Serial Podcast" || q.Keywords != "murder" {
		t.Errorf("Extract() = %+v", q)
	}
	if q.RawText != "Serial Podcast murder" {
		t.Errorf("RawText = %q", q.RawText)
	}
	if q.DateRange != nil {
		t.Errorf("DateRange = %v, want nil without a date hint", q.DateRange)
	}
	if len(mock.calls) != 1 {
		t.Errorf("oracle called %d times, want 1", len(mock.calls))
	}
}

func TestExtract_InferenceOptions(t *testing.T) {
	mock := &mockOracle{responses: []string{`{"Keywords": "x"}`}}
	newTestExtractor(mock).Extract(context.Background(), "x")

	opts := mock.opts[0]
	if opts.MaxTokens != 256 {
		t.Errorf("MaxTokens = %d, want 256", opts.MaxTokens)
	}
	if len(opts.Stop) != 1 || opts.Stop[0] != "User:" {
		t.Errorf("Stop = %v, want [User:]", opts.Stop)
	}
	last := mock.calls[0][len(mock.calls[0])-1]
	if last.Role != "user" || last.Content != "x" {
		t.Errorf("final turn = %+v, want user text", last)
	}
}

func TestExtract_CaseInsensitiveFields(t *testing.T) {
	mock := &mockOracle{responses: []string{`{"podcastName": "Lage der Nation", "keywords": ["Wahl", "Berlin"]}`}}
	q := newTestExtractor(mock).Extract(context.Background(), "Lage der Nation Wahl Berlin")

	if q == nil {
		t.Fatal("Extract() = nil")
	}
	if q.PodcastName != "Lage der Nation" {
		t.Errorf("PodcastName = %q", q.PodcastName)
	}
	if q.Keywords != "Wahl Berlin" {
		t.Errorf("Keywords = %q, want array joined", q.Keywords)
	}
}

func TestExtract_PlaceholdersAreBlank(t *testing.T) {
	mock := &mockOracle{responses: []string{`{"PodcastName": "[name]", "Keywords": "null", "Date": "[date]"}`}}
	q := newTestExtractor(mock).Extract(context.Background(), "hallo bot")

	if q == nil {
		t.Fatal("Extract() = nil, want empty query")
	}
	if !q.Empty() {
		t.Errorf("Empty() = false for %+v", q)
	}
	if len(mock.calls) != 1 {
		t.Errorf("placeholder date should not trigger date resolution, got %d calls", len(mock.calls))
	}
}

func TestExtract_NoBraces(t *testing.T) {
	mock := &mockOracle{responses: []string{`I cannot help with that.`}}
	if q := newTestExtractor(mock).Extract(context.Background(), "some query"); q != nil {
		t.Errorf("Extract() = %+v, want nil", q)
	}
}

func TestExtract_MalformedJSON(t *testing.T) {
	mock := &mockOracle{responses: []string{`{"PodcastName": Serial}`}}
	if q := newTestExtractor(mock).Extract(context.Background(), "some query"); q != nil {
		t.Errorf("Extract() = %+v, want nil", q)
	}
}

func TestExtract_NestedObjectIsCutAtFirstBrace(t *testing.T) {
	mock := &mockOracle{responses: []string{`{"PodcastName": "x", "Meta": {"a": 1}, "Keywords": "y"}`}}
	if q := newTestExtractor(mock).Extract(context.Background(), "x y"); q != nil {
		t.Errorf("Extract() = %+v, want nil for nested payload", q)
	}
}

func TestExtract_OracleDown(t *testing.T) {
	mock := &mockOracle{err: fmt.Errorf("connection refused")}
	if q := newTestExtractor(mock).Extract(context.Background(), "hello"); q != nil {
		t.Errorf("Extract() = %+v, want nil on oracle error", q)
	}
}

func TestExtract_Timeout(t *testing.T) {
	mock := &mockOracle{responses: []string{`{"Keywords": "x"}`}, delay: 5 * time.Second}
	e := newTestExtractor(mock).WithTimeout(50 * time.Millisecond)

	start := time.Now()
	q := e.Extract(context.Background(), "query")
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Errorf("Extract took %v, want it bounded by the timeout", elapsed)
	}
	if q != nil {
		t.Errorf("Extract() = %+v, want nil on timeout", q)
	}
}

func TestExtract_EmptyText(t *testing.T) {
	mock := &mockOracle{}
	if q := newTestExtractor(mock).Extract(context.Background(), "   "); q != nil {
		t.Errorf("Extract() = %+v, want nil", q)
	}
	if len(mock.calls) != 0 {
		t.Errorf("oracle called for empty text")
	}
}

func TestExtract_RuleResolvedDate(t *testing.T) {
	mock := &mockOracle{responses: []string{`{"PodcastName": "", "Keywords": "Olympia", "Date": "letzten Monat"}`}}
	q := newTestExtractor(mock).Extract(context.Background(), "Olympia letzten Monat")

	if q == nil || q.DateRange == nil {
		t.Fatalf("Extract() = %+v, want a date range", q)
	}
	if got := q.DateRange.String(); got != "2024-05-01..2024-05-31" {
		t.Errorf("DateRange = %s, want 2024-05-01..2024-05-31", got)
	}
	if len(mock.calls) != 1 {
		t.Errorf("rule-resolved hint should not call the oracle again, got %d calls", len(mock.calls))
	}
}

func TestExtract_OracleResolvedDate(t *testing.T) {
	mock := &mockOracle{responses: []string{
		`{"PodcastName": "", "Keywords": "Fußball", "Date": "zur letzten EM"}`,
		`{"startDate": "2024-06-14", "endDate": "2024-07-14"}`,
	}}
	q := newTestExtractor(mock).Extract(context.Background(), "Fußball zur letzten EM")

	if q == nil || q.DateRange == nil {
		t.Fatalf("Extract() = %+v, want a date range", q)
	}
	if got := q.DateRange.String(); got != "2024-06-14..2024-07-14" {
		t.Errorf("DateRange = %s", got)
	}
	if len(mock.calls) != 2 {
		t.Fatalf("oracle called %d times, want 2", len(mock.calls))
	}
	dateCall := mock.calls[1]
	if !strings.Contains(dateCall[1].Content, "2024-06-12") {
		t.Errorf("date transcript does not state the current date: %q", dateCall[1].Content)
	}
	if dateCall[len(dateCall)-1].Content != "zur letzten EM" {
		t.Errorf("date transcript final turn = %q", dateCall[len(dateCall)-1].Content)
	}
}

func TestExtract_UnresolvableDateIsNotAnError(t *testing.T) {
	mock := &mockOracle{responses: []string{
		`{"Keywords": "Kochen", "Date": "irgendwann"}`,
		`{"startDate": "keine Ahnung", "endDate": ""}`,
	}}
	q := newTestExtractor(mock).Extract(context.Background(), "Kochen irgendwann")

	if q == nil {
		t.Fatal("Extract() = nil, want query without date")
	}
	if q.DateRange != nil {
		t.Errorf("DateRange = %v, want nil", q.DateRange)
	}
	if q.DateHint != "irgendwann" {
		t.Errorf("DateHint = %q", q.DateHint)
	}
}

func TestQuery_Empty(t *testing.T) {
	tests := []struct {
		q    *Query
		want bool
	}{
		{nil, true},
		{&Query{}, true},
		{&Query{PodcastName: "  ", Keywords: "\t"}, true},
		{&Query{PodcastName: "Serial"}, false},
		{&Query{Keywords: "murder"}, false},
	}
	for _, tt := range tests {
		if got := tt.q.Empty(); got != tt.want {
			t.Errorf("%+v.Empty() = %v, want %v", tt.q, got, tt.want)
		}
	}
}
