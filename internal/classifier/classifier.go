package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kris-hamade/project-b-r0/internal/models"
	"go.uber.org/zap"
)

// Request is the payload sent to the classifier service.
type Request struct {
	Message        string   `json:"message"`
	RecentMessages []string `json:"recentMessages"`
	ChannelName    string   `json:"channelName"`
}

// Client calls the external classifier service. A malformed or non-2xx
// response is a classification failure; callers apply their own fallback.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    timeout,
		logger:     logger,
	}
}

// Classify returns a validated verdict for the message, or an error if the
// service is unreachable, slow, or returns an invalid shape.
func (c *Client) Classify(ctx context.Context, req Request) (*models.Classification, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("message is required for classification")
	}
	if req.RecentMessages == nil {
		req.RecentMessages = []string{}
	}
	if req.ChannelName == "" {
		req.ChannelName = "unknown"
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode classifier request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("classifier timeout after %s", c.timeout)
		}
		return nil, fmt.Errorf("failed to call classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, string(errText))
	}

	var raw struct {
		ShouldRespond *bool    `json:"shouldRespond"`
		Confidence    *float64 `json:"confidence"`
		IsQuestion    *bool    `json:"isQuestion"`
		Topic         string   `json:"topic"`
		Sensitivity   string   `json:"sensitivity"`
		Reason        *string  `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode classifier response: %w", err)
	}

	return validate(raw.ShouldRespond, raw.Confidence, raw.IsQuestion, raw.Topic, raw.Sensitivity, raw.Reason)
}

// validate is the single parsing boundary: either every field checks out and
// a full Classification is returned, or the whole verdict is rejected.
func validate(shouldRespond *bool, confidence *float64, isQuestion *bool, topic, sensitivity string, reason *string) (*models.Classification, error) {
	if shouldRespond == nil || confidence == nil || isQuestion == nil || reason == nil {
		return nil, fmt.Errorf("invalid classifier response format")
	}
	if *confidence < 0 || *confidence > 1 {
		return nil, fmt.Errorf("invalid classifier confidence %f", *confidence)
	}

	t := models.Topic(topic)
	switch t {
	case models.TopicDnD, models.TopicTech, models.TopicGaming, models.TopicOther:
	default:
		return nil, fmt.Errorf("invalid classifier topic %q", topic)
	}

	s := models.Sensitivity(sensitivity)
	switch s {
	case models.SensitivityLow, models.SensitivityMedium, models.SensitivityHigh:
	default:
		return nil, fmt.Errorf("invalid classifier sensitivity %q", sensitivity)
	}

	return &models.Classification{
		ShouldRespond: *shouldRespond,
		Confidence:    *confidence,
		IsQuestion:    *isQuestion,
		Topic:         t,
		Sensitivity:   s,
		Reason:        *reason,
	}, nil
}

// Healthy reports whether the classifier service answers its health check.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Classifier health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var status struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.Status == "ok"
}
