// Package fyyd queries the fyyd.de podcast search API.
package fyyd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL   = "https://api.fyyd.de/0.2/"
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mastodon-FyydBot"
	episodeSearch    = "search/episode"
	podcastLookup    = "podcast"
)

// DefaultBlacklist holds the words stripped from podcast name hints.
var DefaultBlacklist = []string{"Podcast"}

// ErrTransport is wrapped into errors caused by the HTTP round trip or an
// undecodable response.
var ErrTransport = errors.New("fyyd transport failure")

// Client executes episode searches and resolves podcast names.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	blacklist  []string
	names      *NameCache
	logger     *slog.Logger
}

// NewClient creates a client against the public fyyd API. names must not be nil.
func NewClient(names *NameCache, blacklist []string) *Client {
	if blacklist == nil {
		blacklist = DefaultBlacklist
	}
	return &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		userAgent: defaultUserAgent,
		blacklist: blacklist,
		names:     names,
		logger:    slog.Default(),
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(baseURL string, names *NameCache, blacklist []string) *Client {
	c := NewClient(names, blacklist)
	c.baseURL = strings.TrimRight(baseURL, "/") + "/"
	return c
}

// WithLogger replaces the client's logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	c.logger = l
	return c
}

// Names exposes the client's name cache.
func (c *Client) Names() *NameCache {
	return c.names
}

// Search runs req and returns the date-filtered, name-resolved episodes.
// Failures are logged and yield nil; callers treat nil and empty alike.
func (c *Client) Search(ctx context.Context, req Request) []Episode {
	episodes, err := c.SearchEpisodes(ctx, req)
	if err != nil {
		c.logger.Error("getting search results failed", "query", req.RawText,
			"podcast_name", req.PodcastName, "keywords", req.Keywords, "error", err)
		return nil
	}
	return episodes
}

// SearchEpisodes is Search with the failure returned instead of logged.
func (c *Client) SearchEpisodes(ctx context.Context, req Request) ([]Episode, error) {
	name := NormalizeName(req.PodcastName, c.blacklist)

	query := episodeSearch + "?"
	if name != "" {
		query += "podcast_title=" + EscapeDataString(name) + "&"
	}
	query += "term=" + EscapeDataString(req.Keywords)

	c.logger.Debug("sending query to fyyd", "query", query)

	var resp searchResponse
	if err := c.getJSON(ctx, query, &resp); err != nil {
		return nil, err
	}

	matches := FilterByDate(resp.Data, req.From, req.To)
	for i := range matches {
		matches[i].PodcastName = c.podcastName(ctx, matches[i].PodcastID)
	}

	c.logger.Info("found episodes for search query", "count", len(resp.Data),
		"matching", len(matches), "query", req.RawText)
	return matches, nil
}

// podcastName resolves a name through the cache. Lookup failures degrade to
// an empty name for this episode only.
func (c *Client) podcastName(ctx context.Context, podcastID int) string {
	name, resolved, err := c.names.Resolve(ctx, podcastID, c.fetchPodcastName)
	if err != nil {
		c.logger.Warn("podcast name lookup failed", "podcast_id", podcastID, "error", err)
		return ""
	}
	if !resolved {
		return ""
	}
	return name
}

func (c *Client) fetchPodcastName(ctx context.Context, podcastID int) (string, bool, error) {
	var resp podcastResponse
	if err := c.getJSON(ctx, podcastLookup+"?podcast_id="+strconv.Itoa(podcastID), &resp); err != nil {
		return "", false, err
	}
	if resp.Data == nil || resp.Data.ID != podcastID {
		c.logger.Debug("podcast lookup returned a different id", "podcast_id", podcastID)
		return "", false, nil
	}
	c.logger.Debug("received podcast name", "title", resp.Data.Title, "podcast_id", podcastID)
	return resp.Data.Title, true, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrTransport, err)
	}
	return nil
}

// NormalizeName strips every blacklisted substring from name and trims it.
func NormalizeName(name string, blacklist []string) string {
	for _, word := range blacklist {
		if word == "" {
			continue
		}
		name = strings.ReplaceAll(name, word, "")
	}
	return strings.TrimSpace(name)
}

// FilterByDate keeps episodes whose publication day lies within [from, to].
// Both bounds are inclusive calendar dates; a nil bound is open.
func FilterByDate(episodes []Episode, from, to *time.Time) []Episode {
	if from == nil && to == nil {
		return episodes
	}
	out := make([]Episode, 0, len(episodes))
	for _, e := range episodes {
		day := calendarDay(e.PublishedAt.Time)
		if from != nil && day.Before(calendarDay(*from)) {
			continue
		}
		if to != nil && day.After(calendarDay(*to)) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EscapeDataString percent-encodes s for use inside a query value, spaces as %20.
func EscapeDataString(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
