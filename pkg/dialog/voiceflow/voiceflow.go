// Package voiceflow talks to the Voiceflow Dialog Manager runtime API.
package voiceflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"flowbridge/pkg/config"
	"flowbridge/pkg/dialog"

	"github.com/go-resty/resty/v2"
)

const (
	variablesPath = "/state/user/{userID}/variables"
	interactPath  = "/state/user/{userID}/interact"

	actionTypeText = "text"
)

type Client struct {
	http           *resty.Client
	versionID      string
	requestConfig  requestConfig
	requestTimeout time.Duration
}

type variablesRequest struct {
	UserID string `json:"user_id"`
}

type interactRequest struct {
	Action action        `json:"action"`
	Config requestConfig `json:"config"`
}

type action struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

type requestConfig struct {
	TTS       bool `json:"tts"`
	StripSSML bool `json:"stripSSML"`
}

func New(cfg config.VoiceflowConfig) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.RuntimeEndpoint), "/")
	if endpoint == "" {
		return nil, errors.New("dialog.voiceflow.runtime_endpoint is required")
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("dialog.voiceflow.api_key is required")
	}

	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = config.DefaultRequestTimeoutSeconds * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(requestTimeout).
		SetHeader("Authorization", apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:      httpClient,
		versionID: strings.TrimSpace(cfg.VersionID),
		requestConfig: requestConfig{
			TTS:       cfg.TTS,
			StripSSML: cfg.StripSSML,
		},
		requestTimeout: requestTimeout,
	}, nil
}

// errMissingUserID is reported as an upstream failure: without a user id the
// runtime has no state to address.
var errMissingUserID = errors.New("user id is required")

// Interact stores userID as a runtime variable, then sends utterance as a text
// action. The interact call is never issued when the variable update fails.
func (c *Client) Interact(ctx context.Context, userID string, utterance string) ([]dialog.RawItem, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &dialog.UpstreamError{Step: dialog.StepUpdateVariables, Err: errMissingUserID}
	}

	if err := c.updateVariables(ctx, userID); err != nil {
		return nil, err
	}

	return c.interact(ctx, userID, utterance)
}

func (c *Client) updateVariables(ctx context.Context, userID string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := clientLogger().With("operation", dialog.StepUpdateVariables)
	startedAt := time.Now()
	log.Debug("runtime request started", "user_id", userID)

	response, err := c.http.R().
		SetContext(ctx).
		SetPathParam("userID", userID).
		SetBody(variablesRequest{UserID: userID}).
		Patch(variablesPath)
	if err := checkResponse(dialog.StepUpdateVariables, response, err); err != nil {
		log.Debug("runtime request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return err
	}

	log.Debug("runtime request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "status", response.StatusCode())
	return nil
}

func (c *Client) interact(ctx context.Context, userID string, utterance string) ([]dialog.RawItem, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := clientLogger().With("operation", dialog.StepInteract)
	startedAt := time.Now()
	log.Debug("runtime request started", "user_id", userID, "utterance_length", len(utterance))

	request := c.http.R().
		SetContext(ctx).
		SetPathParam("userID", userID).
		SetBody(interactRequest{
			Action: action{Type: actionTypeText, Payload: utterance},
			Config: c.requestConfig,
		})
	if c.versionID != "" {
		request.SetHeader("versionID", c.versionID)
	}

	response, err := request.Post(interactPath)
	if err := checkResponse(dialog.StepInteract, response, err); err != nil {
		log.Debug("runtime request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return nil, err
	}

	var items []dialog.RawItem
	if err := json.Unmarshal(response.Body(), &items); err != nil {
		err = &dialog.UpstreamError{Step: dialog.StepInteract, StatusCode: response.StatusCode(), Err: fmt.Errorf("decode response: %w", err)}
		log.Debug("runtime request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return nil, err
	}

	log.Debug("runtime request completed",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"status", response.StatusCode(),
		"items_count", len(items),
	)
	return items, nil
}

// checkResponse folds transport errors and non-2xx statuses into one UpstreamError.
func checkResponse(step string, response *resty.Response, err error) error {
	if err != nil {
		return &dialog.UpstreamError{Step: step, Err: err}
	}
	if !response.IsSuccess() {
		return &dialog.UpstreamError{
			Step:       step,
			StatusCode: response.StatusCode(),
			Err:        fmt.Errorf("unexpected response: %s", bodyPreview(response.Body())),
		}
	}
	return nil
}

func clientLogger() *slog.Logger {
	return slog.Default().With("component", "dialog.voiceflow")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

const bodyPreviewLimit = 200

func bodyPreview(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty body"
	}
	if len(text) <= bodyPreviewLimit {
		return text
	}
	return text[:bodyPreviewLimit] + "..."
}
