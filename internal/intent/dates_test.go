package intent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func fixedRange(s string) Resolver {
	return ResolverFunc(func(context.Context, string, time.Time) (*DateRange, error) {
		return parseRange(s), nil
	})
}

func parseRange(s string) *DateRange {
	t := parseOracleDate(s)
	return &DateRange{Start: t, End: t}
}

func TestChain_FirstSuccessWins(t *testing.T) {
	var secondCalled bool
	chain := Chain{
		ResolverFunc(func(context.Context, string, time.Time) (*DateRange, error) {
			return nil, ErrNoDate
		}),
		fixedRange("2024-01-01"),
		ResolverFunc(func(context.Context, string, time.Time) (*DateRange, error) {
			secondCalled = true
			return nil, nil
		}),
	}

	dr := chain.Resolve(context.Background(), "hint", fixedNow, discard)
	if dr == nil || dr.Start.Format(time.DateOnly) != "2024-01-01" {
		t.Fatalf("Resolve = %v", dr)
	}
	if secondCalled {
		t.Error("resolver after the first success was called")
	}
}

func TestChain_SkipsErrorsAndEmptyRanges(t *testing.T) {
	chain := Chain{
		ResolverFunc(func(context.Context, string, time.Time) (*DateRange, error) {
			return nil, errors.New("boom")
		}),
		ResolverFunc(func(context.Context, string, time.Time) (*DateRange, error) {
			return &DateRange{}, nil
		}),
		fixedRange("2023-05-05"),
	}
	if dr := chain.Resolve(context.Background(), "hint", fixedNow, discard); dr == nil {
		t.Fatal("Resolve = nil, want third resolver's range")
	}
}

func TestChain_InvertedRangeFallsThrough(t *testing.T) {
	var fallbackCalled bool
	chain := Chain{
		ResolverFunc(func(context.Context, string, time.Time) (*DateRange, error) {
			start, end := parseOracleDate("2026-03-01"), parseOracleDate("2024-05-31")
			return &DateRange{Start: start, End: end}, nil
		}),
		ResolverFunc(func(context.Context, string, time.Time) (*DateRange, error) {
			fallbackCalled = true
			return parseRange("2024-04-01"), nil
		}),
	}

	dr := chain.Resolve(context.Background(), "von März bis Mai 2024", fixedNow, discard)
	if !fallbackCalled {
		t.Fatal("inverted range was accepted, fallback resolver not called")
	}
	if dr == nil || dr.Start.Format(time.DateOnly) != "2024-04-01" {
		t.Errorf("Resolve = %v, want the fallback range", dr)
	}
}

func TestChain_RuleResolverInvertedHintReachesOracle(t *testing.T) {
	var oracleCalled bool
	chain := Chain{
		NewRuleResolver(),
		ResolverFunc(func(context.Context, string, time.Time) (*DateRange, error) {
			oracleCalled = true
			return nil, ErrNoDate
		}),
	}
	chain.Resolve(context.Background(), "von Mai 2024 bis März 2024", fixedNow, discard)
	if !oracleCalled {
		t.Error("rule resolver accepted a range that ends before it starts")
	}
}

func TestChain_NothingResolves(t *testing.T) {
	chain := Chain{ResolverFunc(func(context.Context, string, time.Time) (*DateRange, error) {
		return nil, ErrNoDate
	})}
	if dr := chain.Resolve(context.Background(), "hint", fixedNow, discard); dr != nil {
		t.Errorf("Resolve = %v, want nil", dr)
	}
}

func TestOracleResolver_HalfOpen(t *testing.T) {
	mock := &mockOracle{responses: []string{`{"startDate": "2024-01-01", "endDate": "[endDate]"}`}}
	r := &OracleResolver{Oracle: mock, Model: "m"}

	dr, err := r.Resolve(context.Background(), "seit Januar", fixedNow)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dr.Start == nil || dr.Start.Format(time.DateOnly) != "2024-01-01" {
		t.Errorf("Start = %v", dr.Start)
	}
	if dr.End != nil {
		t.Errorf("End = %v, want nil for unparseable bound", dr.End)
	}
}

func TestOracleResolver_NeitherBound(t *testing.T) {
	mock := &mockOracle{responses: []string{`{"startDate": "", "endDate": "soon"}`}}
	r := &OracleResolver{Oracle: mock, Model: "m"}

	if _, err := r.Resolve(context.Background(), "bald", fixedNow); !errors.Is(err, ErrNoDate) {
		t.Errorf("err = %v, want ErrNoDate", err)
	}
}

func TestOracleResolver_MissingBraces(t *testing.T) {
	mock := &mockOracle{responses: []string{`startDate is 2024-01-01`}}
	r := &OracleResolver{Oracle: mock, Model: "m"}

	if _, err := r.Resolve(context.Background(), "x", fixedNow); !errors.Is(err, ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
}

func TestParseOracleDate(t *testing.T) {
	for _, s := range []string{"2024-03-05", "2024-03-05T10:00:00Z", "2024-03-05 10:00:00", "05.03.2024"} {
		got := parseOracleDate(s)
		if got == nil || got.Format(time.DateOnly) != "2024-03-05" {
			t.Errorf("parseOracleDate(%q) = %v", s, got)
		}
	}
	if got := parseOracleDate("yesterday"); got != nil {
		t.Errorf("parseOracleDate(yesterday) = %v, want nil", got)
	}
}
