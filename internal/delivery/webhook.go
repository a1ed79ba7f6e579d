package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jwebster45206/npc-quest-engine/pkg/actor"
	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
)

const webhookTimeout = 10 * time.Second

type allowedMentions struct {
	Parse []string `json:"parse"`
}

// webhookPayload is the body chat-platform webhooks accept. Only user
// mentions are allowed to ping.
type webhookPayload struct {
	Content         string          `json:"content"`
	Username        string          `json:"username,omitempty"`
	AvatarURL       string          `json:"avatar_url,omitempty"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

// WebhookSink posts NPC replies through the webhook named by each NPC's
// WebhookEnv variable, so they appear under the NPC's name and avatar.
// Hints and acks go to the system webhook when one is configured.
type WebhookSink struct {
	httpClient       *http.Client
	systemWebhookURL string
	lookupEnv        func(string) string
	logger           *slog.Logger
}

var _ Sink = (*WebhookSink)(nil)

// NewWebhookSink creates a webhook sink. systemWebhookURL may be empty.
func NewWebhookSink(systemWebhookURL string, logger *slog.Logger) *WebhookSink {
	return &WebhookSink{
		httpClient: &http.Client{
			Timeout: webhookTimeout,
		},
		systemWebhookURL: systemWebhookURL,
		lookupEnv:        os.Getenv,
		logger:           logger,
	}
}

func (s *WebhookSink) SendAsNPC(ctx context.Context, npc *actor.NPC, channel quest.ChannelRef, text string) {
	if npc == nil {
		return
	}
	url := ""
	if npc.WebhookEnv != "" {
		url = s.lookupEnv(npc.WebhookEnv)
	}
	if url == "" {
		s.logger.Warn("Missing webhook for NPC, reply dropped", "npc", npc.Name, "webhook_env", npc.WebhookEnv)
		return
	}

	if err := s.post(ctx, url, webhookPayload{
		Content:   text,
		Username:  npc.Label(),
		AvatarURL: npc.AvatarURL,
	}); err != nil {
		s.logger.Error("Failed to post NPC reply", "npc", npc.Name, "channel", channel.Name, "error", err)
	}
}

func (s *WebhookSink) SendSystemHint(ctx context.Context, channel quest.ChannelRef, text string) {
	s.sendSystem(ctx, channel, text)
}

func (s *WebhookSink) SendAck(ctx context.Context, channel quest.ChannelRef, mention string) {
	s.sendSystem(ctx, channel, AckText(mention))
}

func (s *WebhookSink) sendSystem(ctx context.Context, channel quest.ChannelRef, text string) {
	if s.systemWebhookURL == "" {
		s.logger.Debug("No system webhook configured, message dropped", "channel", channel.Name)
		return
	}
	if err := s.post(ctx, s.systemWebhookURL, webhookPayload{Content: text}); err != nil {
		s.logger.Error("Failed to post system message", "channel", channel.Name, "error", err)
	}
}

func (s *WebhookSink) post(ctx context.Context, url string, payload webhookPayload) error {
	payload.AllowedMentions = allowedMentions{Parse: []string{"users"}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
