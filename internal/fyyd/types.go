package fyyd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Episode is one row of a fyyd episode search.
type Episode struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	GUID        string    `json:"guid"`
	URL         string    `json:"url"`
	Enclosure   string    `json:"enclosure"`
	PodcastID   int       `json:"podcast_id"`
	ImageURL    string    `json:"imgURL"`
	PublishedAt Timestamp `json:"pubdate"`
	Duration    *int      `json:"duration"`
	Season      *int      `json:"num_season"`
	Number      *int      `json:"num_episode"`
	FyydURL     string    `json:"url_fyyd"`
	Description string    `json:"description"`
	ContentType string    `json:"content_type"`

	// PodcastName is resolved after the search; empty when it could not be resolved.
	PodcastName string `json:"-"`
}

// searchResponse mirrors GET search/episode.
type searchResponse struct {
	Status  int       `json:"status"`
	Message string    `json:"msg"`
	Meta    meta      `json:"meta"`
	Data    []Episode `json:"data"`
}

type meta struct {
	APIInfo struct {
		Version string `json:"API_VERSION"`
	} `json:"API_INFO"`
	Server   string `json:"server"`
	Duration *int   `json:"duration"`
}

// podcastResponse mirrors GET podcast.
type podcastResponse struct {
	Data *struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	} `json:"data"`
}

// Timestamp accepts the date formats the fyyd API has been seen to emit.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// Request is a search against the episode index. Either PodcastName or
// Keywords must be set.
type Request struct {
	PodcastName string
	Keywords    string
	// From and To are calendar dates; nil leaves that side open.
	From *time.Time
	To   *time.Time
	// RawText is only used for logging.
	RawText string
}
