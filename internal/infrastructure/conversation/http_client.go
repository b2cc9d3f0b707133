// Package conversation talks to the external conversation store over HTTP.
// The chat access service only creates conversations and checks existence;
// messages never pass through here.
package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/config"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/service"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

// Client implements ConversationStore against the conversation service API.
// Every call gets one retry on transient failure before surfacing
// conversation_unavailable.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates the conversation store client.
func NewClient(cfg *config.ConversationConfig, log logger.Logger) service.ConversationStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithComponent("conversation_client"),
	}
}

type createRequest struct {
	ProviderID string `json:"provider_id"`
}

type createResponse struct {
	ConversationID string `json:"conversation_id"`
}

// CreateConversation opens a new empty conversation for the provider.
func (c *Client) CreateConversation(ctx context.Context, providerID string) (string, error) {
	body, err := json.Marshal(createRequest{ProviderID: providerID})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode conversation request")
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			c.logger.Warn(ctx, "retrying conversation create", logger.Error(lastErr))
		}

		id, err := c.doCreate(ctx, body)
		if err == nil {
			return id, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.ErrConversationUnavailable(lastErr)
}

func (c *Client) doCreate(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/conversations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("conversation store returned status %d", resp.StatusCode)
	}

	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.ConversationID == "" {
		return "", fmt.Errorf("conversation store returned empty id")
	}
	return out.ConversationID, nil
}

// ConversationExists reports whether the conversation is still present.
func (c *Client) ConversationExists(ctx context.Context, conversationID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead,
		c.baseURL+"/v1/conversations/"+conversationID, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to build existence request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, errors.ErrConversationUnavailable(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, errors.ErrConversationUnavailable(
			fmt.Errorf("conversation store returned status %d", resp.StatusCode))
	}
}
