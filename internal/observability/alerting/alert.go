// Package alerting notifies operators about failed transfers and airdrops.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	xerrors "ChatWallet/internal/errors"
	"ChatWallet/pkg/logger"
)

// Channel names a notification route.
type Channel string

const (
	ChannelLog     Channel = "log"
	ChannelWebhook Channel = "webhook"
)

// Event describes one alert-worthy failure.
type Event struct {
	Code           xerrors.Code      `json:"code"`
	Message        string            `json:"message"`
	Severity       xerrors.Severity  `json:"severity"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

// FromError builds an Event from a coded error. stage says which step of
// the operation failed.
func FromError(conversationID, stage string, err error) Event {
	code := xerrors.CodeOf(err)
	attrs := xerrors.AttributesOf(code)
	metadata := map[string]string{"stage": stage}
	if coded, ok := xerrors.From(err); ok {
		for k, v := range coded.Metadata() {
			metadata[k] = v
		}
	}
	message := attrs.Message
	if err != nil {
		message = err.Error()
	}
	return Event{
		Code:           code,
		Message:        message,
		Severity:       xerrors.SeverityOf(err),
		ConversationID: conversationID,
		Metadata:       metadata,
		OccurredAt:     time.Now().UTC(),
	}
}

// Notifier sends events to one channel.
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher broadcasts events.
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher delivers every event to all registered notifiers.
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout creates a FanoutDispatcher. Nil notifiers are skipped; a later
// notifier replaces an earlier one on the same channel.
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify broadcasts event and joins the per-channel errors.
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes alerts to the audit log.
type LogNotifier struct{}

// Channel implements Notifier.
func (LogNotifier) Channel() Channel { return ChannelLog }

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, event Event) error {
	level := slog.LevelWarn
	if event.Severity == xerrors.SeverityCritical {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("conversation_id", event.ConversationID),
		slog.String("message", event.Message),
	}
	for _, k := range sortedKeys(event.Metadata) {
		attrs = append(attrs, slog.String("meta."+k, event.Metadata[k]))
	}
	logger.Audit().LogAttrs(ctx, level, "alert", attrs...)
	return nil
}

// WebhookNotifier posts alerts to an HTTP endpoint. URLs on
// hooks.slack.com receive a Slack message payload; others receive the
// Event as JSON.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

// NewWebhookNotifier creates a notifier with its own timeout.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Channel implements Notifier.
func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.URL == "" {
		logger.L().Warn("webhook notifier is not configured, alert dropped",
			slog.String("code", string(event.Code)))
		return nil
	}
	var payload any = event
	if strings.Contains(n.URL, "hooks.slack.com") {
		payload = map[string]string{
			"text": fmt.Sprintf("*[%s]* %s - %s", event.Severity, event.Code, event.Message),
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with %s", resp.Status)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
