// Package syncer implements the backends a workspace tracker syncs to.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/nclamvn/prismy-production-sub002/internal/errors"
	"github.com/nclamvn/prismy-production-sub002/internal/requestid"
	"github.com/nclamvn/prismy-production-sub002/internal/retry"
	"github.com/nclamvn/prismy-production-sub002/internal/workspace"
)

// HTTP pushes sync payloads to a remote endpoint as JSON.
type HTTP struct {
	url    string
	token  string
	client *http.Client
	retry  retry.Config
	logger zerolog.Logger
}

// NewHTTP creates an HTTP syncer. token, when set, is sent as a bearer
// credential.
func NewHTTP(url, token string, timeout time.Duration, rc retry.Config, logger zerolog.Logger) *HTTP {
	h := &HTTP{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
		retry:  rc,
		logger: logger.With().Str("component", "syncer").Str("backend", "http").Logger(),
	}
	h.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		h.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("sync push failed, retrying")
	}
	return h
}

// Sync posts p, retrying transient failures.
func (h *HTTP) Sync(ctx context.Context, p workspace.SyncPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling sync payload: %w", err)
	}
	ctx, reqID := requestid.New(ctx)

	err = retry.Do(ctx, h.retry, func(ctx context.Context) error {
		return h.post(ctx, reqID, body)
	})
	if err != nil {
		return fmt.Errorf("sync push for %s: %w", p.UserID, err)
	}
	h.logger.Debug().Str("user_id", p.UserID).Str("request_id", reqID).Msg("sync pushed")
	return nil
}

func (h *HTTP) post(ctx context.Context, reqID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "workspaced-sync/1.0")
	req.Header.Set(requestid.Header, reqID)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", perrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return perrors.NewAPIError("sync", resp.StatusCode, string(bytes.TrimSpace(msg)))
}
