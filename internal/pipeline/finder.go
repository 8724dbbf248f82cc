package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/fyydbot/internal/composer"
	"github.com/kalambet/fyydbot/internal/fyyd"
	"github.com/kalambet/fyydbot/internal/intent"
	"github.com/kalambet/fyydbot/internal/metrics"
)

// Extractor turns plain text into a search intent; nil means no intent.
type Extractor interface {
	Extract(ctx context.Context, text string) *intent.Query
}

// Searcher runs an episode search; failures yield an empty result.
type Searcher interface {
	Search(ctx context.Context, req fyyd.Request) []fyyd.Episode
}

// Composer builds the reply texts for a non-empty result.
type Composer interface {
	Compose(q *intent.Query, episodes []fyyd.Episode) (composer.Reply, bool)
}

// Outcome classifies how a request ended.
type Outcome int

const (
	NoIntent Outcome = iota
	EmptyIntent
	NotFound
	Unbuildable
	Found
)

func (o Outcome) String() string {
	switch o {
	case NoIntent:
		return "no_intent"
	case EmptyIntent:
		return "empty_intent"
	case NotFound:
		return "not_found"
	case Unbuildable:
		return "unbuildable"
	case Found:
		return "found"
	default:
		return "unknown"
	}
}

// Timings holds the duration of each stage that ran.
type Timings struct {
	Extract time.Duration
	Search  time.Duration
	Compose time.Duration
}

// Result is the outcome of one request together with everything produced
// on the way.
type Result struct {
	Outcome  Outcome
	Query    *intent.Query
	Episodes []fyyd.Episode
	Reply    composer.Reply
	Timings  Timings
}

// Text returns the message a user sees for this result. For Found it is the
// summary followed by the top list, if any.
func (r Result) Text() string {
	switch r.Outcome {
	case NoIntent:
		return composer.TextNotUnderstood
	case EmptyIntent:
		return composer.TextNoSearchTerms
	case NotFound:
		return composer.TextNotFound
	case Unbuildable:
		return composer.TextFailure
	}
	if r.Reply.TopList == "" {
		return r.Reply.Summary
	}
	return r.Reply.Summary + "\n\n" + r.Reply.TopList
}

// Finder orchestrates one search request: intent extraction, episode
// search and reply composition.
type Finder struct {
	extractor Extractor
	searcher  Searcher
	composer  Composer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewFinder creates a Finder wired to all pipeline components. m may be nil.
func NewFinder(extractor Extractor, searcher Searcher, comp Composer, m *metrics.Metrics) *Finder {
	return &Finder{
		extractor: extractor,
		searcher:  searcher,
		composer:  comp,
		metrics:   m,
		logger:    slog.Default(),
	}
}

// WithLogger returns a shallow copy of f logging to l.
func (f *Finder) WithLogger(l *slog.Logger) *Finder {
	cp := *f
	cp.logger = l
	return &cp
}

// Find runs the pipeline on text:
//  1. Extract the intent (nil → NoIntent, no name and no keywords → EmptyIntent)
//  2. Call onIntent, if set, before searching
//  3. Search and filter episodes (none → NotFound)
//  4. Compose the reply (summary not buildable → Unbuildable)
//
// The only error returned is one from onIntent.
func (f *Finder) Find(ctx context.Context, text string, onIntent func(context.Context, *intent.Query) error) (res Result, err error) {
	defer func() {
		if err == nil {
			f.metrics.Outcome(res.Outcome.String())
		}
	}()

	start := time.Now()
	q := f.extractor.Extract(ctx, text)
	res.Timings.Extract = time.Since(start)
	f.metrics.ObserveStage("extract", res.Timings.Extract)

	if q == nil {
		f.logger.Warn("failed to parse search query", "text", text)
		res.Outcome = NoIntent
		return res, nil
	}
	res.Query = q
	if q.Empty() {
		f.logger.Warn("parsed search query without podcast or keywords", "text", text)
		res.Outcome = EmptyIntent
		return res, nil
	}

	if onIntent != nil {
		if err := onIntent(ctx, q); err != nil {
			return res, err
		}
	}

	req := fyyd.Request{
		PodcastName: q.PodcastName,
		Keywords:    q.Keywords,
		RawText:     q.RawText,
	}
	if q.DateRange != nil {
		req.From, req.To = q.DateRange.Start, q.DateRange.End
	}

	start = time.Now()
	res.Episodes = f.searcher.Search(ctx, req)
	res.Timings.Search = time.Since(start)
	f.metrics.ObserveStage("search", res.Timings.Search)
	f.metrics.Episodes(len(res.Episodes))

	if len(res.Episodes) == 0 {
		f.logger.Info("no matching episodes", "text", text)
		res.Outcome = NotFound
		return res, nil
	}

	start = time.Now()
	reply, ok := f.composer.Compose(q, res.Episodes)
	res.Timings.Compose = time.Since(start)
	f.metrics.ObserveStage("compose", res.Timings.Compose)

	if !ok {
		res.Outcome = Unbuildable
		return res, nil
	}
	res.Reply = reply
	res.Outcome = Found

	f.logger.Debug("search complete",
		"episodes", len(res.Episodes),
		"extract_ms", res.Timings.Extract.Milliseconds(),
		"search_ms", res.Timings.Search.Milliseconds(),
	)
	return res, nil
}
