package runner

import (
	"bufio"
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

	"github.com/jwebster45206/npc-quest-engine/pkg/state"
)

const (
	// DecisionTimeout is max time to wait for a worker to process a queued event
	DecisionTimeout = 30 * time.Second
)

// errNoInteraction is returned by GetInteraction on 404
var errNoInteraction = errors.New("no active interaction")

// IntakeResponse is the response from the event intake endpoints
type IntakeResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Decision  string `json:"decision,omitempty"`
}

// PostEvent posts a text or reaction event and returns the intake response
func PostEvent(ctx context.Context, client *http.Client, baseURL, userID string, step TestStep) (*IntakeResponse, error) {
	body := map[string]any{
		"user_id":      userID,
		"channel_id":   step.ChannelID,
		"channel_name": step.Channel,
	}
	path := "/v1/events/text"
	if step.IsReaction() {
		path = "/v1/events/reaction"
		body["emoji"] = step.Reaction
		body["message_id"] = "integration"
	} else {
		body["text"] = step.Text
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("event endpoint returned %d: %s", resp.StatusCode, string(b))
	}

	var out IntakeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse event response: %w", err)
	}
	return &out, nil
}

// GetInteraction retrieves the user's interaction. It returns
// errNoInteraction when the user has none.
func GetInteraction(ctx context.Context, client *http.Client, baseURL, userID string) (*state.Interaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/interactions/"+userID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create interaction request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send interaction request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNoInteraction
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("interaction endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var in state.Interaction
	if err := json.NewDecoder(resp.Body).Decode(&in); err != nil {
		return nil, fmt.Errorf("failed to decode interaction: %w", err)
	}
	return &in, nil
}

// DecisionStream follows /v1/deliveries and remembers the decision the
// workers published for each request id.
type DecisionStream struct {
	cancel context.CancelFunc

	mu        sync.Mutex
	decisions map[string]string
	waiters   map[string]chan string
	err       error
}

// OpenDecisionStream connects to the delivery stream and waits for the
// server's "connected" event, so no decision published afterwards is missed.
func OpenDecisionStream(ctx context.Context, baseURL string) (*DecisionStream, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/deliveries", nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// No client timeout: the stream stays open for the whole suite
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open delivery stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("delivery stream returned %d", resp.StatusCode)
	}

	s := &DecisionStream{
		cancel:    cancel,
		decisions: make(map[string]string),
		waiters:   make(map[string]chan string),
	}
	connected := make(chan struct{})
	go s.read(resp.Body, connected)

	select {
	case <-connected:
		return s, nil
	case <-time.After(5 * time.Second):
		s.Close()
		return nil, fmt.Errorf("delivery stream did not send a connected event")
	}
}

func (s *DecisionStream) read(body io.ReadCloser, connected chan struct{}) {
	defer func() { _ = body.Close() }()

	scanner := bufio.NewScanner(body)
	var eventType string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
			if eventType == "connected" {
				close(connected)
			}
		case strings.HasPrefix(line, "data: ") && eventType == "interaction.decision":
			var ev struct {
				RequestID string         `json:"request_id"`
				Data      map[string]any `json:"data"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue
			}
			decision, _ := ev.Data["decision"].(string)
			s.record(ev.RequestID, decision)
		}
	}

	s.mu.Lock()
	s.err = scanner.Err()
	if s.err == nil {
		s.err = io.EOF
	}
	s.mu.Unlock()
}

func (s *DecisionStream) record(requestID, decision string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[requestID] = decision
	if ch, ok := s.waiters[requestID]; ok {
		ch <- decision
		delete(s.waiters, requestID)
	}
}

// WaitForDecision blocks until the decision for requestID has been published
func (s *DecisionStream) WaitForDecision(ctx context.Context, requestID string) (string, error) {
	s.mu.Lock()
	if d, ok := s.decisions[requestID]; ok {
		s.mu.Unlock()
		return d, nil
	}
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return "", fmt.Errorf("delivery stream closed: %w", err)
	}
	ch := make(chan string, 1)
	s.waiters[requestID] = ch
	s.mu.Unlock()

	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(DecisionTimeout):
		return "", fmt.Errorf("timeout waiting for decision on %s (waited %v)", requestID, DecisionTimeout)
	}
}

// Close disconnects from the delivery stream
func (s *DecisionStream) Close() {
	s.cancel()
}
