/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"bubble-ledger-go/internal/dispatcher"
	"bubble-ledger-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// pushRequest is the body posted to the push gateway
type pushRequest struct {
	EventId            string            `json:"event_id"`
	RecipientAccountId int64             `json:"recipient_account_id"`
	Title              string            `json:"title"`
	Body               string            `json:"body"`
	Type               string            `json:"type"`
	Data               map[string]string `json:"data,omitempty"`
}

// GatewaySink posts notifications to an HTTP push gateway. The gateway answers 202 when it has
// queued the push and reports the final outcome later through the acknowledgement endpoint.
type GatewaySink struct {
	client  *http.Client
	url     string
	token   string
	limiter *rate.Limiter
}

func NewGatewaySink(cfg models.NotifyConfig) (*GatewaySink, error) {
	if cfg.GatewayUrl == "" {
		return nil, fmt.Errorf("notification gateway url cannot be empty")
	}
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}
	return newGatewaySink(cfg, httpClient), nil
}

func newGatewaySink(cfg models.NotifyConfig, httpClient *http.Client) *GatewaySink {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &GatewaySink{
		client:  httpClient,
		url:     strings.TrimRight(cfg.GatewayUrl, "/") + "/v1/notifications",
		token:   cfg.GatewayToken,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func createCustomHttpClient() (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 15 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   10 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: tr,
		Timeout:   30 * time.Second,
	}, nil
}

// Deliver sends one notification event. Client errors other than 429 are permanent.
func (g *GatewaySink) Deliver(ctx context.Context, event models.OutboxEvent) error {
	var n models.Notification
	if err := json.Unmarshal(event.Payload, &n); err != nil {
		return fmt.Errorf("%w: undecodable notification payload: %v", dispatcher.ErrPermanent, err)
	}

	body, err := json.Marshal(pushRequest{
		EventId:            event.Id,
		RecipientAccountId: n.RecipientAccountId,
		Title:              n.Title,
		Body:               n.Body,
		Type:               n.Type,
		Data:               n.Data,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", dispatcher.ErrPermanent, err)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", dispatcher.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", event.Id)
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("push gateway request failed: %w", err)
	}
	defer resp.Body.Close()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		zap.L().Debug("Notification handed to gateway",
			zap.String("event_id", event.Id),
			zap.Int64("recipient", n.RecipientAccountId),
			zap.Int("status", resp.StatusCode))
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	default:
		return fmt.Errorf("%w: push gateway returned %d: %s",
			dispatcher.ErrPermanent, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
}
