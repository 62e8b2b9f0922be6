package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"honeyshield/internal/config"
	"honeyshield/internal/domain/models"
	"honeyshield/internal/metrics"
	"honeyshield/pkg/logger"
)

// SlackWebhookPrefix is the only accepted webhook URL prefix.
const SlackWebhookPrefix = "https://hooks.slack.com/services/"

const (
	slackPreviewLength  = 200
	slackTestMessage    = "🔧 Honeyshield connection test - your Slack is properly configured!"
	slackFooterTemplate = "Alert ID: `%s` | Generated by Honeyshield Security System"
)

var (
	ErrNotConfigured = errors.New("slack webhook not configured")
	ErrQueueFull     = errors.New("slack delivery queue full")
)

var slackColors = map[models.Severity]string{
	models.SeverityCritical: "#ff0000",
	models.SeverityHigh:     "#ff6b6b",
	models.SeverityMedium:   "#ffa726",
	models.SeverityLow:      "#4caf50",
}

var slackEmojis = map[models.Severity]string{
	models.SeverityCritical: "🚨",
	models.SeverityHigh:     "⚠️",
	models.SeverityMedium:   "🔍",
	models.SeverityLow:      "ℹ️",
}

// SlackMessage is an incoming-webhook payload.
type SlackMessage struct {
	Text        string            `json:"text,omitempty"`
	Blocks      []SlackBlock      `json:"blocks,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

type SlackBlock struct {
	Type     string      `json:"type"`
	Text     *SlackText  `json:"text,omitempty"`
	Fields   []SlackText `json:"fields,omitempty"`
	Elements []SlackText `json:"elements,omitempty"`
}

type SlackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type SlackAttachment struct {
	Color  string       `json:"color"`
	Blocks []SlackBlock `json:"blocks"`
}

func mrkdwn(s string) SlackText { return SlackText{Type: "mrkdwn", Text: s} }

func plain(s string) *SlackText { return &SlackText{Type: "plain_text", Text: s, Emoji: true} }

// SlackNotifier posts alerts to a Slack incoming webhook from a small
// worker pool.
type SlackNotifier struct {
	webhookURL string
	client     *retryablehttp.Client
	queue      chan *models.Alert
	workers    int
	metrics    *metrics.Metrics
	logger     *logger.Logger
	now        func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
	stopCh    chan struct{}
}

// NewSlackNotifier creates a notifier. Workers are started by Start.
func NewSlackNotifier(cfg config.SlackConfig, m *metrics.Metrics, log *logger.Logger) *SlackNotifier {
	log = log.WithComponent("slack")

	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil

	return &SlackNotifier{
		webhookURL: strings.TrimSpace(cfg.WebhookURL),
		client:     client,
		queue:      make(chan *models.Alert, cfg.QueueSize),
		workers:    cfg.Workers,
		metrics:    m,
		logger:     log,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// ValidWebhookURL reports whether url is a Slack incoming webhook.
func ValidWebhookURL(url string) bool {
	return strings.HasPrefix(url, SlackWebhookPrefix)
}

// Enabled reports whether a valid webhook is configured.
func (n *SlackNotifier) Enabled() bool {
	return ValidWebhookURL(n.webhookURL)
}

// Start launches the delivery workers.
func (n *SlackNotifier) Start() {
	n.startOnce.Do(func() {
		for i := 0; i < n.workers; i++ {
			n.wg.Add(1)
			go n.worker(i)
		}
		n.logger.Info().Int("workers", n.workers).Bool("configured", n.Enabled()).Msg("slack delivery workers started")
	})
}

// Stop drains queued alerts and waits for the workers.
func (n *SlackNotifier) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		n.wg.Wait()
		n.logger.Info().Msg("slack notifier stopped")
	})
}

func (n *SlackNotifier) worker(id int) {
	defer n.wg.Done()
	for {
		select {
		case a := <-n.queue:
			n.deliver(a)
		case <-n.stopCh:
			for {
				select {
				case a := <-n.queue:
					n.deliver(a)
				default:
					n.logger.Debug().Int("worker", id).Msg("slack worker stopping")
					return
				}
			}
		}
	}
}

func (n *SlackNotifier) deliver(a *models.Alert) {
	n.metrics.SetSlackQueueDepth(len(n.queue))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := n.Send(ctx, a); err != nil {
		n.logger.Error().Err(err).Str("alert_id", a.AlertID).Msg("slack notification failed")
	}
}

// Notify queues an alert for delivery without blocking.
func (n *SlackNotifier) Notify(a *models.Alert) error {
	if !n.Enabled() {
		return ErrNotConfigured
	}
	select {
	case n.queue <- a:
		n.metrics.SetSlackQueueDepth(len(n.queue))
		return nil
	default:
		n.metrics.SlackDelivered(ErrQueueFull)
		return ErrQueueFull
	}
}

// Send posts one alert synchronously.
func (n *SlackNotifier) Send(ctx context.Context, a *models.Alert) error {
	if !n.Enabled() {
		return ErrNotConfigured
	}
	err := n.post(ctx, n.BuildMessage(a))
	n.metrics.SlackDelivered(err)
	if err == nil {
		n.logger.Info().Str("alert_id", a.AlertID).Msg("slack alert sent")
	}
	return err
}

// TestConnection posts a plain test message.
func (n *SlackNotifier) TestConnection(ctx context.Context) error {
	if !n.Enabled() {
		return ErrNotConfigured
	}
	return n.post(ctx, &SlackMessage{Text: slackTestMessage})
}

func (n *SlackNotifier) post(ctx context.Context, msg *SlackMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	return nil
}

// BuildMessage renders the alert as Slack blocks with a severity colored
// attachment.
func (n *SlackNotifier) BuildMessage(a *models.Alert) *SlackMessage {
	sev := a.Severity
	color, ok := slackColors[sev]
	if !ok {
		color = "#000000"
	}
	emoji, ok := slackEmojis[sev]
	if !ok {
		emoji = "📢"
	}
	source := a.SourcePlatform
	if source == "" {
		source = models.PlatformLinkedIn.DisplayName()
	}

	preview := a.MessageContent
	if r := []rune(preview); len(r) > slackPreviewLength {
		preview = string(r[:slackPreviewLength]) + "..."
	}

	blocks := []SlackBlock{
		{Type: "header", Text: plain(fmt.Sprintf("%s Honeyshield Security Alert %s", emoji, emoji))},
		{Type: "section", Fields: []SlackText{
			mrkdwn("*Severity:*\n" + string(sev)),
			mrkdwn(fmt.Sprintf("*Risk Score:*\n%d/100", a.RiskScore)),
			mrkdwn("*Threat Type:*\n" + a.ThreatType),
			mrkdwn("*Source:*\n" + source),
		}},
		{Type: "section", Fields: []SlackText{
			mrkdwn("*Sender:*\n" + a.SenderName),
			mrkdwn("*Time:*\n" + n.now().Format("15:04:05")),
		}},
		{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: "*Message Preview:*\n```" + preview + "```"}},
	}
	if a.Indicators != "" && a.Indicators != "None" {
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: "*Detection Indicators:*\n" + a.Indicators},
		})
	}
	blocks = append(blocks,
		SlackBlock{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: "*Recommended Action:*\n" + a.RecommendedAction}},
		SlackBlock{Type: "divider"},
		SlackBlock{Type: "context", Elements: []SlackText{mrkdwn(fmt.Sprintf(slackFooterTemplate, a.AlertID))}},
	)

	return &SlackMessage{
		Blocks: blocks,
		Attachments: []SlackAttachment{{
			Color: color,
			Blocks: []SlackBlock{{
				Type: "section",
				Text: plain(fmt.Sprintf("%s severity alert detected", sev)),
			}},
		}},
	}
}
