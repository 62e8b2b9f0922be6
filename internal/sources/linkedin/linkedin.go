// Package linkedin drives a decoy LinkedIn profile through a headless Chrome
// session and reads the latest message of each conversation.
package linkedin

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"honeyshield/internal/config"
	"honeyshield/internal/domain/models"
	"honeyshield/internal/sources"
	"honeyshield/pkg/logger"
)

const (
	slug = "linkedin"

	baseURL      = "https://www.linkedin.com"
	loginURL     = baseURL + "/login"
	messagingURL = baseURL + "/messaging/"
	networkURL   = baseURL + "/mynetwork/"
	feedURL      = baseURL + "/feed/"

	conversationSelector = "div.msg-conversation-listitem"
)

// lastEventScript reads the newest event of the open conversation.
const lastEventScript = `(() => {
  const events = document.querySelectorAll('.msg-s-event-listitem');
  const last = events[events.length - 1];
  if (!last) return {found: false};
  const sender = last.querySelector('.msg-s-message-group__profile-link');
  const body = last.querySelector('.msg-s-event-listitem__body');
  return {
    found: true,
    senderName: sender ? sender.innerText.trim() : 'Unknown',
    senderUrl: sender ? sender.href : '',
    content: body ? body.innerText.trim() : '',
    fromMe: !!last.querySelector('.msg-s-message-group--by-current-user'),
  };
})()`

// ScrapedEvent is the last event of a conversation as read from the page.
type ScrapedEvent struct {
	Found      bool   `json:"found"`
	SenderName string `json:"senderName"`
	SenderURL  string `json:"senderUrl"`
	Content    string `json:"content"`
	FromMe     bool   `json:"fromMe"`
}

// ToInbound converts a scraped event. Own messages, empty bodies and empty
// conversations are dropped.
func (e ScrapedEvent) ToInbound(at time.Time) (*models.InboundMessage, bool) {
	content := strings.TrimSpace(e.Content)
	if !e.Found || e.FromMe || content == "" {
		return nil, false
	}
	name := strings.TrimSpace(e.SenderName)
	if name == "" {
		name = "Unknown"
	}
	return &models.InboundMessage{
		SourceSlug:       slug,
		Platform:         models.PlatformLinkedIn,
		SenderName:       name,
		SenderProfileURL: CanonicalProfileURL(e.SenderURL),
		Content:          content,
		ReceivedAt:       at.UTC(),
	}, true
}

// CanonicalProfileURL strips query strings and trailing slashes so the same
// profile maps to one threat actor.
func CanonicalProfileURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimRight(raw, "/")
}

// Source reads decoy profile messages from LinkedIn.
type Source struct {
	*sources.BaseSource
	cfg    config.LinkedInConfig
	logger *logger.Logger
	rng    *rand.Rand

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	loggedIn      bool
}

// New creates the LinkedIn source. The browser starts on the first poll.
func New(cfg config.LinkedInConfig, log *logger.Logger) *Source {
	if cfg.MaxConversations <= 0 {
		cfg.MaxConversations = 10
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	s := &Source{
		BaseSource: sources.NewBaseSource(slug, "LinkedIn Decoy Profile", models.PlatformLinkedIn),
		cfg:        cfg,
		logger:     log.WithSource(slug),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	_ = s.Configure(sources.SourceConfig{
		Enabled:      cfg.Enabled,
		PollInterval: cfg.PollInterval,
		MaxMessages:  cfg.MaxConversations,
		Timeout:      2 * time.Minute,
	})
	return s
}

func (s *Source) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1366, 900),
	)
	if s.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ChromePath))
	}
	if s.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(s.cfg.UserDataDir))
	}
	return opts
}

// session returns a logged-in browser context, starting Chrome and logging
// in when needed. Callers hold s.mu.
func (s *Source) session(ctx context.Context) (context.Context, error) {
	if s.browserCtx == nil {
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("start browser: %w", err)
		}
		s.allocCancel = allocCancel
		s.browserCtx = browserCtx
		s.browserCancel = browserCancel
		s.loggedIn = false
	}
	if !s.loggedIn {
		if err := s.login(ctx); err != nil {
			return nil, err
		}
		s.loggedIn = true
	}
	return s.browserCtx, nil
}

// bounded derives a context from the browser session that also ends when
// ctx does or after timeout.
func (s *Source) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(s.browserCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

func (s *Source) login(ctx context.Context) error {
	if s.cfg.Email == "" || s.cfg.Password == "" {
		return errors.New("linkedin credentials not configured")
	}
	tctx, cancel := s.bounded(ctx, s.cfg.PageTimeout)
	defer cancel()

	err := chromedp.Run(tctx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(`#username`, chromedp.ByID),
		chromedp.SendKeys(`#username`, s.cfg.Email, chromedp.ByID),
		chromedp.SendKeys(`#password`, s.cfg.Password, chromedp.ByID),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.WaitVisible(`#global-nav`, chromedp.ByID),
	)
	if err != nil {
		return fmt.Errorf("linkedin login failed: %w", err)
	}
	s.logger.Info().Msg("logged into linkedin")
	return nil
}

// reset tears down the browser so the next call starts a fresh session.
func (s *Source) reset() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx, s.browserCancel, s.allocCancel = nil, nil, nil
	s.loggedIn = false
}

// Fetch opens the messaging page and reads the last event of the first
// MaxConversations conversations.
func (s *Source) Fetch(ctx context.Context) ([]*models.InboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.session(ctx); err != nil {
		s.reset()
		return nil, err
	}

	tctx, cancel := s.bounded(ctx, s.Config().Timeout)
	defer cancel()

	var count int
	err := chromedp.Run(tctx,
		chromedp.Navigate(messagingURL),
		chromedp.WaitReady(conversationSelector, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(`document.querySelectorAll('`+conversationSelector+`').length`, &count),
	)
	if err != nil {
		// An expired session usually shows up as a missing conversation list.
		s.reset()
		return nil, fmt.Errorf("open messaging: %w", err)
	}

	limit := min(count, s.Config().MaxMessages)
	out := make([]*models.InboundMessage, 0, limit)
	for i := 0; i < limit; i++ {
		if tctx.Err() != nil {
			break
		}
		var ev ScrapedEvent
		err := chromedp.Run(tctx,
			chromedp.Evaluate(fmt.Sprintf(`document.querySelectorAll('%s')[%d].click()`, conversationSelector, i), nil),
			chromedp.Sleep(2*time.Second),
			chromedp.Evaluate(lastEventScript, &ev),
		)
		if err != nil {
			s.logger.Warn().Err(err).Int("conversation", i).Msg("error processing conversation")
			continue
		}
		if msg, ok := ev.ToInbound(time.Now()); ok {
			s.logger.Debug().Str("sender", msg.SenderName).Msg("found message")
			out = append(out, msg)
		}
	}

	s.logger.Info().Int("conversations", limit).Int("messages", len(out)).Msg("scraped linkedin inbox")
	return out, nil
}

// MaintainActivity performs one randomly chosen low-key action so the decoy
// profile does not look dormant.
func (s *Source) MaintainActivity(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.session(ctx); err != nil {
		s.reset()
		return err
	}
	tctx, cancel := s.bounded(ctx, s.cfg.PageTimeout*2)
	defer cancel()

	if s.rng.Intn(2) == 0 {
		return s.viewSuggestedProfiles(tctx)
	}
	return s.likeFeedPost(tctx)
}

func (s *Source) viewSuggestedProfiles(ctx context.Context) error {
	var clicked int
	err := chromedp.Run(ctx,
		chromedp.Navigate(networkURL),
		chromedp.Sleep(3*time.Second),
		chromedp.Evaluate(`(() => {
  const buttons = Array.from(document.querySelectorAll('button[class*="invitation-card"]')).slice(0, 2);
  buttons.forEach(b => { try { b.click(); } catch (e) {} });
  return buttons.length;
})()`, &clicked),
	)
	if err != nil {
		return fmt.Errorf("view suggested profiles: %w", err)
	}
	s.logger.Info().Int("clicked", clicked).Msg("completed profile viewing activity")
	return nil
}

func (s *Source) likeFeedPost(ctx context.Context) error {
	var liked bool
	err := chromedp.Run(ctx,
		chromedp.Navigate(feedURL),
		chromedp.Sleep(3*time.Second),
		chromedp.Evaluate(`(() => {
  const b = document.querySelector('button[aria-label*="Like"]');
  if (!b) return false;
  b.click();
  return true;
})()`, &liked),
	)
	if err != nil {
		return fmt.Errorf("like feed post: %w", err)
	}
	if liked {
		s.logger.Info().Msg("liked a post in feed")
	}
	return nil
}

// Close shuts down the browser.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}
