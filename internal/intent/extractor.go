package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/fyydbot/internal/engine"
)

const (
	// DefaultTimeout bounds each oracle conversation.
	DefaultTimeout = 2 * time.Minute

	// DefaultMaxTokens caps the generated answer per oracle call.
	DefaultMaxTokens = 256

	// DefaultOutputLimit caps the accumulated oracle output in bytes.
	DefaultOutputLimit = 16 << 10
)

// StopSequence ends generation once the model starts inventing a new user turn.
const StopSequence = "User:"

// Extractor uses a text-completion oracle to turn mention text into a
// structured Query.
type Extractor struct {
	oracle    engine.Streamer
	model     string
	timeout   time.Duration
	limit     int
	opts      engine.Options
	resolvers Chain
	now       func() time.Time
	logger    *slog.Logger
}

// NewExtractor creates an Extractor using the given oracle and model name.
// Date hints are resolved by the rule-based recognizer first and by a
// second oracle call second.
func NewExtractor(oracle engine.Streamer, model string) *Extractor {
	opts := engine.Options{MaxTokens: DefaultMaxTokens, Stop: []string{StopSequence}}
	return &Extractor{
		oracle:  oracle,
		model:   model,
		timeout: DefaultTimeout,
		limit:   DefaultOutputLimit,
		opts:    opts,
		resolvers: Chain{
			NewRuleResolver(),
			&OracleResolver{Oracle: oracle, Model: model, Options: opts, Limit: DefaultOutputLimit},
		},
		now:    time.Now,
		logger: slog.Default(),
	}
}

// WithTimeout sets the per-call oracle timeout. Non-positive values keep the default.
func (e *Extractor) WithTimeout(d time.Duration) *Extractor {
	if d > 0 {
		e.timeout = d
	}
	return e
}

// WithMaxTokens sets the generation cap for every oracle call.
func (e *Extractor) WithMaxTokens(n int) *Extractor {
	if n > 0 {
		e.opts.MaxTokens = n
		for _, r := range e.resolvers {
			if o, ok := r.(*OracleResolver); ok {
				o.Options.MaxTokens = n
			}
		}
	}
	return e
}

// WithResolvers replaces the date resolver chain.
func (e *Extractor) WithResolvers(resolvers ...Resolver) *Extractor {
	e.resolvers = resolvers
	return e
}

// WithClock overrides the current time used for relative dates.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// WithLogger sets the logger used for extraction failures.
func (e *Extractor) WithLogger(l *slog.Logger) *Extractor {
	e.logger = l
	return e
}

// Extract asks the oracle for the search intent in text. It returns nil on
// any failure (timeout, missing braces, malformed JSON, oracle error); the
// failure is logged and never propagated.
func (e *Extractor) Extract(ctx context.Context, text string) *Query {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	raw, err := e.complete(ctx, QueryTranscript(text))
	if err != nil {
		e.logger.Warn("intent extraction failed", "error", err)
		return nil
	}

	var ex extraction
	if err := decodePayload(raw, &ex); err != nil {
		e.logger.Warn("failed to decode intent from oracle response", "error", err, "response", raw)
		return nil
	}

	q := &Query{
		RawText:     text,
		PodcastName: clean(string(ex.PodcastName)),
		Keywords:    clean(string(ex.Keywords)),
		DateHint:    clean(string(ex.Date)),
	}
	if q.DateHint != "" {
		q.DateRange = e.ResolveDate(ctx, q.DateHint)
	}

	e.logger.Debug("intent extracted",
		"podcast", q.PodcastName,
		"keywords", q.Keywords,
		"date_hint", q.DateHint,
		"date_range", q.DateRange.String(),
	)
	return q
}

// ResolveDate runs the resolver chain over hint under the oracle timeout.
// It returns nil when no resolver understood the hint.
func (e *Extractor) ResolveDate(ctx context.Context, hint string) *DateRange {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.resolvers.Resolve(ctx, hint, e.now(), e.logger)
}

func (e *Extractor) complete(ctx context.Context, msgs []engine.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return engine.Complete(ctx, e.oracle, e.model, msgs, e.opts, e.limit)
}

// placeholders are values small models echo back from the output format
// instead of leaving a field empty.
var placeholders = map[string]bool{
	"[name]": true, "[keywords]": true, "[date]": true,
	"null": true, "none": true, "n/a": true, "unknown": true,
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	if placeholders[strings.ToLower(s)] {
		return ""
	}
	return s
}
