package engine

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedEngine replays fixed chunks and then returns err.
type scriptedEngine struct {
	chunks []string
	err    error
	block  bool
}

func (s *scriptedEngine) Stream(ctx context.Context, _ string, _ []Message, _ Options, onChunk func(string) error) error {
	for _, c := range s.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *scriptedEngine) IsRunning(context.Context) bool { return true }

func TestComplete_Accumulates(t *testing.T) {
	e := &scriptedEngine{chunks: []string{`{"PodcastName":`, ` "Serial"}`}}

	out, err := Complete(context.Background(), e, "m", nil, Options{}, 0)
	require.NoError(t, err)
	assert.Equal(t, `{"PodcastName": "Serial"}`, out)
}

func TestComplete_BoundedAccumulation(t *testing.T) {
	e := &scriptedEngine{chunks: []string{"abcd", "efgh", "ijkl"}}

	out, err := Complete(context.Background(), e, "m", nil, Options{}, 6)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", out)
}

func TestComplete_LimitKeepsRunesWhole(t *testing.T) {
	e := &scriptedEngine{chunks: []string{"abc", "äöü"}}

	out, err := Complete(context.Background(), e, "m", nil, Options{}, 6)
	require.NoError(t, err)
	assert.Equal(t, "abcä", out)
	assert.True(t, utf8.ValidString(out))
}

func TestComplete_StreamErrorWrapsErrOracle(t *testing.T) {
	cause := errors.New("model not loaded")
	e := &scriptedEngine{chunks: []string{"partial"}, err: cause}

	out, err := Complete(context.Background(), e, "m", nil, Options{}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOracle)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "partial", out)
}

func TestComplete_Timeout(t *testing.T) {
	e := &scriptedEngine{block: true}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Complete(ctx, e, "m", nil, Options{}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOracle)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
