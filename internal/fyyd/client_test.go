package fyyd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFyyd serves canned search results and podcast titles and records every
// request it sees.
type fakeFyyd struct {
	mu        sync.Mutex
	episodes  []map[string]any
	titles    map[int]string
	mismatch  map[int]bool
	failIDs   map[int]bool
	searchErr bool
	searches  []string
	lookups   map[int]int
}

func newFakeFyyd(t *testing.T, f *fakeFyyd) *httptest.Server {
	t.Helper()
	if f.lookups == nil {
		f.lookups = make(map[int]int)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.URL.Path {
		case "/search/episode":
			f.searches = append(f.searches, r.URL.RawQuery)
			if f.searchErr {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"status": 1,
				"msg":    "ok",
				"meta":   map[string]any{"API_INFO": map[string]string{"API_VERSION": "0.2"}},
				"data":   f.episodes,
			})
		case "/podcast":
			id, _ := strconv.Atoi(r.URL.Query().Get("podcast_id"))
			f.lookups[id]++
			if f.failIDs[id] {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			returned := id
			if f.mismatch[id] {
				returned = id + 1000
			}
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"id": returned, "title": f.titles[id]},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func episodeJSON(id, podcastID int, pubdate string) map[string]any {
	return map[string]any{
		"id":         id,
		"title":      fmt.Sprintf("Episode %d", id),
		"podcast_id": podcastID,
		"pubdate":    pubdate,
		"url":        fmt.Sprintf("https://example.org/%d.mp3", id),
	}
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestSearch_NormalizesPodcastName(t *testing.T) {
	f := &fakeFyyd{
		episodes: []map[string]any{episodeJSON(1, 10, "2024-01-05T10:00:00+01:00")},
		titles:   map[int]string{10: "Serial"},
	}
	srv := newFakeFyyd(t, f)
	c := NewClientWithBaseURL(srv.URL, NewNameCache(), nil)

	got := c.Search(context.Background(), Request{PodcastName: "Serial Podcast", Keywords: "murder"})

	require.Len(t, got, 1)
	assert.Equal(t, "Serial", got[0].PodcastName)
	require.Len(t, f.searches, 1)
	assert.Equal(t, "podcast_title=Serial&term=murder", f.searches[0])
}

func TestSearch_BlankNameAfterNormalizationIsOmitted(t *testing.T) {
	f := &fakeFyyd{}
	srv := newFakeFyyd(t, f)
	c := NewClientWithBaseURL(srv.URL, NewNameCache(), nil)

	c.Search(context.Background(), Request{PodcastName: " Podcast ", Keywords: "gummibärchen"})

	require.Len(t, f.searches, 1)
	assert.Equal(t, "term=gummib%C3%A4rchen", f.searches[0])
}

func TestSearch_EscapesQueryValues(t *testing.T) {
	f := &fakeFyyd{}
	srv := newFakeFyyd(t, f)
	c := NewClientWithBaseURL(srv.URL, NewNameCache(), nil)

	c.Search(context.Background(), Request{PodcastName: "Logbuch & Netzpolitik", Keywords: "a+b c"})

	require.Len(t, f.searches, 1)
	assert.Equal(t, "podcast_title=Logbuch%20%26%20Netzpolitik&term=a%2Bb%20c", f.searches[0])
}

func TestSearch_NoDateBoundsKeepsEverything(t *testing.T) {
	f := &fakeFyyd{
		episodes: []map[string]any{
			episodeJSON(1, 10, "2001-01-01T00:00:00Z"),
			episodeJSON(2, 10, "2030-01-01T00:00:00Z"),
		},
		titles: map[int]string{10: "Serial"},
	}
	srv := newFakeFyyd(t, f)
	c := NewClientWithBaseURL(srv.URL, NewNameCache(), nil)

	got := c.Search(context.Background(), Request{PodcastName: "Serial Podcast", Keywords: "murder"})
	assert.Len(t, got, 2)
}

func TestSearch_TransportFailureYieldsNoResults(t *testing.T) {
	f := &fakeFyyd{searchErr: true}
	srv := newFakeFyyd(t, f)
	c := NewClientWithBaseURL(srv.URL, NewNameCache(), nil)

	assert.Nil(t, c.Search(context.Background(), Request{Keywords: "x"}))

	_, err := c.SearchEpisodes(context.Background(), Request{Keywords: "x"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSearch_MalformedBodyIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [`))
	}))
	defer srv.Close()
	c := NewClientWithBaseURL(srv.URL, NewNameCache(), nil)

	_, err := c.SearchEpisodes(context.Background(), Request{Keywords: "x"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSearch_NameCacheAvoidsRepeatLookups(t *testing.T) {
	f := &fakeFyyd{
		episodes: []map[string]any{
			episodeJSON(1, 10, "2024-01-05T10:00:00Z"),
			episodeJSON(2, 10, "2024-01-06T10:00:00Z"),
		},
		titles: map[int]string{10: "Methodisch inkorrekt"},
	}
	srv := newFakeFyyd(t, f)
	names := NewNameCache()
	c := NewClientWithBaseURL(srv.URL, names, nil)

	c.Search(context.Background(), Request{Keywords: "physik"})
	c.Search(context.Background(), Request{Keywords: "physik"})

	assert.Equal(t, 1, f.lookups[10])
	hits, misses := names.Stats()
	assert.Equal(t, int64(3), hits)
	assert.Equal(t, int64(1), misses)
}

func TestSearch_MismatchedIDCachedAsNegative(t *testing.T) {
	f := &fakeFyyd{
		episodes: []map[string]any{episodeJSON(1, 10, "2024-01-05T10:00:00Z")},
		titles:   map[int]string{10: "Wrong"},
		mismatch: map[int]bool{10: true},
	}
	srv := newFakeFyyd(t, f)
	names := NewNameCache()
	c := NewClientWithBaseURL(srv.URL, names, nil)

	got := c.Search(context.Background(), Request{Keywords: "x"})
	require.Len(t, got, 1)
	assert.Empty(t, got[0].PodcastName)

	name, resolved, cached := names.Lookup(10)
	assert.True(t, cached)
	assert.False(t, resolved)
	assert.Empty(t, name)

	c.Search(context.Background(), Request{Keywords: "x"})
	assert.Equal(t, 1, f.lookups[10], "negative entries must not be looked up again")
}

func TestSearch_LookupFailureDegradesSingleEpisode(t *testing.T) {
	f := &fakeFyyd{
		episodes: []map[string]any{
			episodeJSON(1, 10, "2024-01-05T10:00:00Z"),
			episodeJSON(2, 20, "2024-01-06T10:00:00Z"),
		},
		titles:  map[int]string{10: "Broken", 20: "Working"},
		failIDs: map[int]bool{10: true},
	}
	srv := newFakeFyyd(t, f)
	names := NewNameCache()
	c := NewClientWithBaseURL(srv.URL, names, nil)

	got := c.Search(context.Background(), Request{Keywords: "x"})
	require.Len(t, got, 2)
	assert.Empty(t, got[0].PodcastName)
	assert.Equal(t, "Working", got[1].PodcastName)

	_, _, cached := names.Lookup(10)
	assert.False(t, cached, "transport failures are not cached")
}

func TestFilterByDate_InclusiveBounds(t *testing.T) {
	mk := func(id int, ts time.Time) Episode {
		return Episode{ID: id, PublishedAt: Timestamp{ts}}
	}
	episodes := []Episode{
		mk(1, time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC)),
		mk(2, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		mk(3, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)),
		mk(4, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)),
		mk(5, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)),
	}

	tests := []struct {
		name     string
		from, to *time.Time
		want     []int
	}{
		{"both bounds", date(2024, 3, 1), date(2024, 3, 31), []int{2, 3, 4}},
		{"start only", date(2024, 3, 15), nil, []int{3, 4, 5}},
		{"end only", nil, date(2024, 3, 1), []int{1, 2}},
		{"no bounds", nil, nil, []int{1, 2, 3, 4, 5}},
		{"empty range", date(2024, 5, 1), date(2024, 4, 1), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []int
			for _, e := range FilterByDate(episodes, tt.from, tt.to) {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestTimestamp_Formats(t *testing.T) {
	for _, raw := range []string{
		`"2024-03-01T10:00:00+01:00"`,
		`"2024-03-01 10:00:00"`,
		`"2024-03-01"`,
	} {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(raw), &ts), raw)
		assert.Equal(t, 2024, ts.Year())
		assert.Equal(t, time.March, ts.Month())
		assert.Equal(t, 1, ts.Day())
	}

	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Serial", NormalizeName("Serial Podcast", DefaultBlacklist))
	assert.Equal(t, "", NormalizeName("Podcast", DefaultBlacklist))
	assert.Equal(t, "podcast lowercase", NormalizeName("podcast lowercase", DefaultBlacklist))
	assert.Equal(t, "Fest & Flauschig", NormalizeName("  Fest & Flauschig ", nil))
}
