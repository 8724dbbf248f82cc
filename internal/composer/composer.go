package composer

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/fyydbot/internal/fyyd"
	"github.com/kalambet/fyydbot/internal/intent"
)

const (
	// DefaultSummaryBudget is the 500 character status limit minus room for
	// the search link, which Mastodon counts as a fixed length.
	DefaultSummaryBudget = 470
	DefaultListBudget    = 450
	DefaultURLReserve    = 16
	DefaultMaxEntries    = 5

	SearchURLPrefix  = "https://fyyd.de/search?search="
	EpisodeURLPrefix = "https://fyyd.de/episode"
)

// Reply is the text of a search answer. TopList is empty when no entry fit
// its budget; it is sent as a reply to Summary.
type Reply struct {
	Summary string
	TopList string
}

// Composer builds reply texts under hard character budgets. Lengths are
// counted in runes.
type Composer struct {
	SummaryBudget int
	ListBudget    int
	URLReserve    int
	MaxEntries    int
	Logger        *slog.Logger
}

// New creates a Composer with the default budgets.
func New() *Composer {
	return &Composer{
		SummaryBudget: DefaultSummaryBudget,
		ListBudget:    DefaultListBudget,
		URLReserve:    DefaultURLReserve,
		MaxEntries:    DefaultMaxEntries,
		Logger:        slog.Default(),
	}
}

// Compose builds the summary and, when at least one entry fits, the top
// list for a non-empty search result. ok is false when the summary cannot
// be built; the caller then sends TextFailure.
func (c *Composer) Compose(q *intent.Query, episodes []fyyd.Episode) (Reply, bool) {
	summary, ok := c.Summary(q, episodes)
	if !ok {
		c.Logger.Error("cannot build summary", "episodes", len(episodes))
		return Reply{}, false
	}
	list, _ := c.TopList(episodes, len(episodes))
	return Reply{Summary: summary, TopList: list}, true
}

// Summary greedy-fits the podcast names of episodes into the summary
// template under SummaryBudget.
func (c *Composer) Summary(q *intent.Query, episodes []fyyd.Episode) (string, bool) {
	tmpl := fmt.Sprintf(summaryFormat, CountLabel(len(episodes)), SearchLink(q, episodes))

	names := make([]string, len(episodes))
	for i, ep := range episodes {
		names[i] = ep.PodcastName
	}
	return FitNames(tmpl, names, c.SummaryBudget)
}

// TopList lists the newest episodes, at most MaxEntries of them. Entries
// are added until the next one plus its URL reservation would overflow
// ListBudget; later entries are never tried. total is the number of
// episodes found and selects the caption.
func (c *Composer) TopList(episodes []fyyd.Episode, total int) (string, bool) {
	sorted := slices.Clone(episodes)
	slices.SortStableFunc(sorted, func(a, b fyyd.Episode) int {
		return b.PublishedAt.Compare(a.PublishedAt.Time)
	})
	if len(sorted) > c.MaxEntries {
		sorted = sorted[:c.MaxEntries]
	}

	var sb strings.Builder
	count := 0
	for _, ep := range sorted {
		entry := fmt.Sprintf("Podcast: %s\nEpisode: %s\nUrl: ", ep.PodcastName, ep.Title)
		if runeLen(sb.String())+runeLen(entry)+c.URLReserve > c.ListBudget {
			break
		}
		sb.WriteString(entry)
		fmt.Fprintf(&sb, "%s/%d\n\n", EpisodeURLPrefix, ep.ID)
		count++
	}

	if count == 0 {
		c.Logger.Warn("cannot display a single episode within the list budget", "budget", c.ListBudget)
		return "", false
	}

	switch {
	case count == 1:
		return captionSingle + sb.String(), true
	case count == total:
		return captionAll + sb.String(), true
	default:
		return fmt.Sprintf(captionNewest, count) + sb.String(), true
	}
}

// FitNames substitutes names into the Placeholder of template. Blank and
// repeated names are dropped first. A single name is inserted as is; with
// two or more, all but the last are quoted and comma-joined and the last is
// left out. While the message exceeds budget, names are removed from the
// tail; when none remain CollectiveNoun is used instead. ok is false when
// there are no names at all or even the CollectiveNoun message exceeds the
// budget.
func FitNames(template string, names []string, budget int) (string, bool) {
	candidates := distinct(names)
	if len(candidates) == 0 {
		return "", false
	}

	msg := fill(template, candidates)
	for len(candidates) > 0 && runeLen(msg) > budget {
		candidates = candidates[:len(candidates)-1]
		msg = fill(template, candidates)
	}
	if len(candidates) == 0 {
		msg = strings.ReplaceAll(template, Placeholder, CollectiveNoun)
	}
	if runeLen(msg) > budget {
		return "", false
	}
	return msg, true
}

func fill(template string, names []string) string {
	switch len(names) {
	case 0:
		return template
	case 1:
		return strings.ReplaceAll(template, Placeholder, names[0])
	}
	quoted := make([]string, len(names)-1)
	for i, n := range names[:len(names)-1] {
		quoted[i] = "'" + n + "'"
	}
	return strings.ReplaceAll(template, Placeholder, strings.Join(quoted, ", "))
}

func distinct(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// SearchLink builds the fyyd web search matching q. When every episode
// belongs to one podcast the link filters by its id instead of the name.
func SearchLink(q *intent.Query, episodes []fyyd.Episode) string {
	var sb strings.Builder
	sb.WriteString(SearchURLPrefix)

	var podcastIDs []int
	for _, ep := range episodes {
		if ep.PodcastID > 0 && !slices.Contains(podcastIDs, ep.PodcastID) {
			podcastIDs = append(podcastIDs, ep.PodcastID)
		}
	}

	if len(podcastIDs) == 1 {
		fmt.Fprintf(&sb, "podcast_id:%d%%20", podcastIDs[0])
	} else if strings.TrimSpace(q.PodcastName) != "" {
		sb.WriteString(fyyd.EscapeDataString(q.PodcastName) + "%20")
	}
	if strings.TrimSpace(q.Keywords) != "" {
		sb.WriteString(fyyd.EscapeDataString(q.Keywords) + "%20")
	}

	link := strings.TrimSpace(sb.String())
	if dr := q.DateRange; dr != nil {
		if dr.Start != nil {
			link += "&ext_min_date=" + dr.Start.Format(time.DateOnly)
		}
		if dr.End != nil {
			link += "&ext_max_date=" + dr.End.Format(time.DateOnly)
		}
	}
	return link
}

// CountLabel renders an episode count, saturating above 20.
func CountLabel(n int) string {
	if n > 20 {
		return countSaturated
	}
	return strconv.Itoa(n)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
