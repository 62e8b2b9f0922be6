// Package twitter reads direct messages sent to a decoy X/Twitter account.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dghubble/go-twitter/twitter"
	"github.com/dghubble/oauth1"

	"honeyshield/internal/config"
	"honeyshield/internal/domain/models"
	"honeyshield/internal/sources"
	"honeyshield/pkg/logger"
)

const (
	slug           = "twitter"
	profileBaseURL = "https://x.com/"
	eventsPageSize = 50
	messageCreate  = "message_create"
)

// Source polls the DM event list of the decoy account.
type Source struct {
	*sources.BaseSource
	client    *twitter.Client
	accountID string
	logger    *logger.Logger

	mu       sync.Mutex
	users    map[string]*twitter.User
	lastSeen time.Time
}

// New creates the source with an OAuth1 signed client.
func New(cfg config.TwitterConfig, log *logger.Logger) *Source {
	oauthCfg := oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret)
	return NewWithClient(cfg, oauthCfg.Client(oauth1.NoContext, token), log)
}

// NewWithClient creates the source on top of an already authorized client.
func NewWithClient(cfg config.TwitterConfig, httpClient *http.Client, log *logger.Logger) *Source {
	s := &Source{
		BaseSource: sources.NewBaseSource(slug, "X/Twitter Decoy Account", models.PlatformTwitter),
		client:     twitter.NewClient(httpClient),
		accountID:  cfg.AccountID,
		logger:     log.WithSource(slug),
		users:      make(map[string]*twitter.User),
	}
	_ = s.Configure(sources.SourceConfig{
		Enabled:      cfg.Enabled,
		PollInterval: cfg.PollInterval,
		MaxMessages:  eventsPageSize,
	})
	return s
}

// Fetch returns DMs received since the previous poll. Messages sent by the
// decoy account itself are skipped.
func (s *Source) Fetch(ctx context.Context) ([]*models.InboundMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	events, _, err := s.client.DirectMessages.EventsList(&twitter.DirectMessageEventsListParams{
		Count: s.Config().MaxMessages,
	})
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}

	newest := s.lastSeen
	out := make([]*models.InboundMessage, 0, len(events.Events))
	for _, ev := range events.Events {
		if ev.Type != messageCreate || ev.Message == nil || ev.Message.Data == nil {
			continue
		}
		if ev.Message.SenderID == s.accountID {
			continue
		}
		text := strings.TrimSpace(ev.Message.Data.Text)
		if text == "" {
			continue
		}
		at := parseTimestamp(ev.CreatedAt)
		if !s.lastSeen.IsZero() && !at.After(s.lastSeen) {
			continue
		}
		if at.After(newest) {
			newest = at
		}

		msg := &models.InboundMessage{
			SourceSlug: slug,
			Platform:   models.PlatformTwitter,
			ExternalID: ev.ID,
			SenderName: ev.Message.SenderID,
			Content:    text,
			ReceivedAt: at,
		}
		if user, err := s.user(ev.Message.SenderID); err != nil {
			s.logger.Warn().Err(err).Str("sender_id", ev.Message.SenderID).Msg("failed to resolve sender")
		} else {
			msg.SenderName = user.Name
			msg.SenderProfileURL = profileBaseURL + user.ScreenName
		}
		out = append(out, msg)
	}
	s.lastSeen = newest

	s.logger.Debug().Int("events", len(events.Events)).Int("messages", len(out)).Msg("polled direct messages")
	return out, nil
}

// user resolves and caches a sender. Callers hold s.mu.
func (s *Source) user(id string) (*twitter.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	uid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", id, err)
	}
	u, _, err := s.client.Users.Show(&twitter.UserShowParams{UserID: uid})
	if err != nil {
		return nil, err
	}
	if u == nil || u.ScreenName == "" {
		return nil, errors.New("user has no screen name")
	}
	s.users[id] = u
	return u, nil
}

// parseTimestamp reads the millisecond epoch used by DM events.
func parseTimestamp(ms string) time.Time {
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil || n <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(n).UTC()
}
