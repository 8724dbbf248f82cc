package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/fyydbot/internal/engine"
)

// ErrNoDate is returned by a Resolver that cannot make sense of a hint.
var ErrNoDate = errors.New("date hint not resolvable")

// Resolver turns a free-form date hint into a DateRange relative to now.
// It returns ErrNoDate (possibly wrapped) when the hint is not understood.
type Resolver interface {
	Resolve(ctx context.Context, hint string, now time.Time) (*DateRange, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(ctx context.Context, hint string, now time.Time) (*DateRange, error)

func (f ResolverFunc) Resolve(ctx context.Context, hint string, now time.Time) (*DateRange, error) {
	return f(ctx, hint, now)
}

// Chain tries each resolver in order and returns the first non-empty range.
// Failures are logged and never returned; nil means no resolver understood
// the hint.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, hint string, now time.Time, logger *slog.Logger) *DateRange {
	for i, r := range c {
		dr, err := r.Resolve(ctx, hint, now)
		if err != nil {
			if !errors.Is(err, ErrNoDate) {
				logger.Warn("date resolver failed", "resolver", i, "hint", hint, "error", err)
			}
			continue
		}
		if dr.Inverted() {
			logger.Warn("date resolver returned an inverted range", "resolver", i, "hint", hint, "range", dr.String())
			continue
		}
		if !dr.IsZero() {
			return dr
		}
	}
	logger.Info("date hint not resolved", "hint", hint)
	return nil
}

// OracleResolver asks the oracle for start and end dates. It is the
// fallback for hints the rule-based recognizer does not cover.
type OracleResolver struct {
	Oracle  engine.Streamer
	Model   string
	Options engine.Options
	Limit   int
}

var oracleDateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	time.DateTime,
	"2006-01-02T15:04:05",
	"02.01.2006",
	"2006/01/02",
}

func (o *OracleResolver) Resolve(ctx context.Context, hint string, now time.Time) (*DateRange, error) {
	raw, err := engine.Complete(ctx, o.Oracle, o.Model, DateTranscript(hint, now), o.Options, o.Limit)
	if err != nil {
		return nil, err
	}

	var de dateExtraction
	if err := decodePayload(raw, &de); err != nil {
		return nil, err
	}

	dr := &DateRange{
		Start: parseOracleDate(string(de.StartDate)),
		End:   parseOracleDate(string(de.EndDate)),
	}
	if dr.IsZero() {
		return nil, fmt.Errorf("%w: oracle returned no usable dates for %q", ErrNoDate, hint)
	}
	return dr, nil
}

// parseOracleDate returns nil for anything that does not parse, leaving
// that bound open.
func parseOracleDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range oracleDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := day(t)
			return &d
		}
	}
	return nil
}
