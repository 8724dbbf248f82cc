// Package mastodon is the bot's view of the social network: unread
// mentions in, replies and edits out. Every call goes through a retry
// policy.
package mastodon

import (
	"context"
	"fmt"
	"log/slog"

	gomastodon "github.com/mattn/go-mastodon"

	"github.com/kalambet/fyydbot/internal/retry"
)

// API is the subset of *gomastodon.Client the bot uses.
type API interface {
	GetNotifications(ctx context.Context, pg *gomastodon.Pagination) ([]*gomastodon.Notification, error)
	DismissNotification(ctx context.Context, id gomastodon.ID) error
	PostStatus(ctx context.Context, toot *gomastodon.Toot) (*gomastodon.Status, error)
	UpdateStatus(ctx context.Context, toot *gomastodon.Toot, id gomastodon.ID) (*gomastodon.Status, error)
	GetAccountCurrentUser(ctx context.Context) (*gomastodon.Account, error)
}

// Mention is an unread mention notification.
type Mention struct {
	// ID is the notification id, used for dismissing.
	ID           string
	StatusID     string
	AuthorHandle string
	ContentHTML  string
	Visibility   string
	InReplyToID  string
}

// Handle is the "@acct " prefix that addresses a reply to the author.
func (m Mention) Handle() string {
	return "@" + m.AuthorHandle + " "
}

// IsThreadReply reports whether the mention continues an existing thread.
func (m Mention) IsThreadReply() bool {
	return m.InReplyToID != ""
}

// Client talks to one Mastodon account.
type Client struct {
	api    API
	policy retry.Policy
	logger *slog.Logger
}

// New creates a Client for the account behind accessToken on instance.
func New(instance, accessToken string, policy retry.Policy) *Client {
	api := gomastodon.NewClient(&gomastodon.Config{
		Server:      instance,
		AccessToken: accessToken,
	})
	api.UserAgent = "Mastodon-FyydBot"
	return NewWithAPI(api, policy)
}

// NewWithAPI creates a Client on top of an existing API implementation.
func NewWithAPI(api API, policy retry.Policy) *Client {
	return &Client{api: api, policy: policy, logger: slog.Default()}
}

// WithLogger sets the logger for call tracing.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	c.logger = l
	c.policy.Logger = l
	return c
}

// VerifyCredentials returns the account name behind the access token. It is
// a startup check and is not retried.
func (c *Client) VerifyCredentials(ctx context.Context) (string, error) {
	account, err := c.api.GetAccountCurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("verifying mastodon credentials: %w", err)
	}
	return account.Acct, nil
}

// ListMentions returns the unread notifications of type mention, in the
// order the server lists them.
func (c *Client) ListMentions(ctx context.Context) ([]Mention, error) {
	notifications, err := retry.Do(ctx, c.policy, "list notifications", func(ctx context.Context) ([]*gomastodon.Notification, error) {
		return c.api.GetNotifications(ctx, nil)
	})
	if err != nil {
		return nil, err
	}

	var mentions []Mention
	for _, n := range notifications {
		if n == nil || n.Type != "mention" {
			continue
		}
		m := Mention{
			ID:           string(n.ID),
			AuthorHandle: n.Account.Acct,
		}
		if s := n.Status; s != nil {
			m.StatusID = string(s.ID)
			m.ContentHTML = s.Content
			m.Visibility = s.Visibility
			m.InReplyToID = idString(s.InReplyToID)
			if s.Account.Acct != "" {
				m.AuthorHandle = s.Account.Acct
			}
		}
		mentions = append(mentions, m)
	}
	return mentions, nil
}

// Dismiss marks the notification as handled.
func (c *Client) Dismiss(ctx context.Context, notificationID string) error {
	return c.policy.Run(ctx, "dismiss notification", func(ctx context.Context) error {
		c.logger.Debug("dismissing notification", "notification_id", notificationID)
		return c.api.DismissNotification(ctx, gomastodon.ID(notificationID))
	})
}

// Publish posts text as a reply to inReplyTo and returns the new status id.
func (c *Client) Publish(ctx context.Context, text, visibility, inReplyTo string) (string, error) {
	return retry.Do(ctx, c.policy, "publish status", func(ctx context.Context) (string, error) {
		status, err := c.api.PostStatus(ctx, &gomastodon.Toot{
			Status:      text,
			InReplyToID: gomastodon.ID(inReplyTo),
			Visibility:  visibility,
		})
		if err != nil {
			return "", err
		}
		c.logger.Info("published status", "status_id", status.ID, "in_reply_to", inReplyTo)
		return string(status.ID), nil
	})
}

// Edit replaces the text of a status the bot posted earlier.
func (c *Client) Edit(ctx context.Context, statusID, text string) (string, error) {
	return retry.Do(ctx, c.policy, "edit status", func(ctx context.Context) (string, error) {
		status, err := c.api.UpdateStatus(ctx, &gomastodon.Toot{Status: text}, gomastodon.ID(statusID))
		if err != nil {
			return "", err
		}
		c.logger.Debug("edited status", "status_id", status.ID)
		return string(status.ID), nil
	})
}

// idString renders the loosely typed in_reply_to_id field.
func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case gomastodon.ID:
		return string(id)
	default:
		return fmt.Sprint(id)
	}
}
