// Package dispatch polls the mention feed and answers each mention at most once.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/fyydbot/internal/composer"
	"github.com/kalambet/fyydbot/internal/intent"
	"github.com/kalambet/fyydbot/internal/mastodon"
	"github.com/kalambet/fyydbot/internal/metrics"
	"github.com/kalambet/fyydbot/internal/pipeline"
	"github.com/kalambet/fyydbot/internal/retry"
)

const (
	DefaultPollInterval  = 10 * time.Second
	DefaultFetchCooldown = 60 * time.Second
)

// Social abstracts the Mastodon account operations. Implementations retry
// internally; an error means the call is given up.
type Social interface {
	ListMentions(ctx context.Context) ([]mastodon.Mention, error)
	Dismiss(ctx context.Context, notificationID string) error
	Publish(ctx context.Context, text, visibility, inReplyTo string) (string, error)
	Edit(ctx context.Context, statusID, text string) (string, error)
}

// Finder runs the search pipeline for one plain-text request.
type Finder interface {
	Find(ctx context.Context, text string, onIntent func(context.Context, *intent.Query) error) (pipeline.Result, error)
}

// Config controls the polling loop.
type Config struct {
	PollInterval  time.Duration
	FetchCooldown time.Duration
	// Acknowledge publishes a "looking" reply before searching; later
	// error and progress messages edit it.
	Acknowledge bool
}

// Dispatcher processes mentions one at a time.
type Dispatcher struct {
	social  Social
	finder  Finder
	cfg     Config
	metrics *metrics.Metrics
	sleep   retry.SleepFunc
	logger  *slog.Logger
}

// New creates a Dispatcher. Zero durations in cfg fall back to the defaults.
func New(social Social, finder Finder, cfg Config, m *metrics.Metrics) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FetchCooldown <= 0 {
		cfg.FetchCooldown = DefaultFetchCooldown
	}
	return &Dispatcher{
		social:  social,
		finder:  finder,
		cfg:     cfg,
		metrics: m,
		sleep:   sleepCtx,
		logger:  slog.Default(),
	}
}

// WithSleep replaces the wait used for the poll interval and fetch cooldown.
func (d *Dispatcher) WithSleep(s retry.SleepFunc) *Dispatcher {
	d.sleep = s
	return d
}

// WithLogger sets the base logger.
func (d *Dispatcher) WithLogger(l *slog.Logger) *Dispatcher {
	d.logger = l
	return d
}

// Run polls until ctx is cancelled, which returns nil. A social call that
// fails for good while handling a mention ends the loop with that error.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started", "poll_interval", d.cfg.PollInterval)
	for {
		if ctx.Err() != nil {
			return nil
		}

		_, fetched, err := d.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		// The cooldown after a failed fetch replaces the poll interval.
		if !fetched {
			continue
		}

		if err := d.sleep(ctx, d.cfg.PollInterval); err != nil {
			return nil
		}
	}
}

// RunOnce fetches the unread mentions and handles them in order. It returns
// how many mentions were taken from the feed. A failed fetch is logged and
// followed by the cooldown; it is not an error.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	n, _, err := d.poll(ctx)
	return n, err
}

// poll is RunOnce that also reports whether the fetch succeeded.
func (d *Dispatcher) poll(ctx context.Context) (int, bool, error) {
	mentions, err := d.social.ListMentions(ctx)
	if err != nil {
		d.logger.Error("failed reading from Mastodon, waiting before trying again",
			"error", err, "cooldown", d.cfg.FetchCooldown)
		d.metrics.FetchFailure()
		d.sleep(ctx, d.cfg.FetchCooldown)
		return 0, false, nil
	}
	if len(mentions) > 0 {
		d.logger.Info("found unread notifications", "count", len(mentions))
	}

	for i, m := range mentions {
		if err := d.handle(ctx, m); err != nil {
			return i + 1, true, fmt.Errorf("handling notification %s: %w", m.ID, err)
		}
	}
	return len(mentions), true, nil
}

func (d *Dispatcher) handle(ctx context.Context, m mastodon.Mention) error {
	log := d.logger.With("run_id", uuid.NewString(), "notification_id", m.ID)

	if err := d.social.Dismiss(ctx, m.ID); err != nil {
		return err
	}

	text := mastodon.PlainText(m.ContentHTML)
	if text == "" {
		log.Debug("skipping mention without content")
		d.metrics.Mention("skipped_empty")
		return nil
	}
	if m.IsThreadReply() {
		log.Debug("skipping reply inside a thread", "in_reply_to", m.InReplyToID)
		d.metrics.Mention("skipped_thread")
		return nil
	}
	d.metrics.Mention("processed")

	c := &conversation{social: d.social, mention: m}
	if d.cfg.Acknowledge {
		if err := c.acknowledge(ctx); err != nil {
			return err
		}
	}

	res, err := d.finder.Find(ctx, text, func(ctx context.Context, q *intent.Query) error {
		return c.progress(ctx, q)
	})
	if err != nil {
		return err
	}
	log.Info("request processed", "outcome", res.Outcome, "episodes", len(res.Episodes))

	if res.Outcome != pipeline.Found {
		if err := c.fail(ctx, res.Text()); err != nil {
			return err
		}
		log.Warn("sent error message", "recipient", m.AuthorHandle, "message", res.Text())
		return nil
	}

	summaryID, err := c.reply(ctx, res.Reply.Summary, m.StatusID)
	if err != nil {
		return err
	}
	if res.Reply.TopList != "" {
		if _, err := c.reply(ctx, res.Reply.TopList, summaryID); err != nil {
			return err
		}
	}
	return nil
}

// conversation tracks the bot's replies to one mention.
type conversation struct {
	social  Social
	mention mastodon.Mention
	ackID   string
}

func (c *conversation) acknowledge(ctx context.Context) error {
	id, err := c.reply(ctx, composer.TextAcknowledge, c.mention.StatusID)
	if err != nil {
		return err
	}
	c.ackID = id
	return nil
}

// progress names the search subject in the acknowledgement, if there is one.
func (c *conversation) progress(ctx context.Context, q *intent.Query) error {
	if c.ackID == "" {
		return nil
	}
	subject := q.Keywords
	if subject == "" {
		subject = q.PodcastName
	}
	_, err := c.social.Edit(ctx, c.ackID, c.mention.Handle()+composer.TextCollecting(subject))
	return err
}

// fail replaces the acknowledgement with text, or replies with it when no
// acknowledgement was sent.
func (c *conversation) fail(ctx context.Context, text string) error {
	if c.ackID != "" {
		_, err := c.social.Edit(ctx, c.ackID, c.mention.Handle()+text)
		return err
	}
	_, err := c.reply(ctx, text, c.mention.StatusID)
	return err
}

func (c *conversation) reply(ctx context.Context, text, inReplyTo string) (string, error) {
	return c.social.Publish(ctx, c.mention.Handle()+text, c.mention.Visibility, inReplyTo)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
