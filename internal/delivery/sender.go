// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package delivery defines the outbound message transport collaborator
// and an HTTP implementation authenticated with OAuth2 client
// credentials, matching how the platform's send API is fronted.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"
)

// Sender delivers one outbound notification email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// HTTPSender posts send requests to the platform delivery endpoint.
type HTTPSender struct {
	httpClient *http.Client
	endpoint   string
}

// Config holds the delivery endpoint and its OAuth2 client credentials.
type Config struct {
	Endpoint     string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// NewHTTPSender creates a sender whose requests carry client-credentials
// tokens. The returned client refreshes tokens automatically.
func NewHTTPSender(ctx context.Context, cfg Config) *HTTPSender {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	return &HTTPSender{
		httpClient: cc.Client(ctx),
		endpoint:   cfg.Endpoint,
	}
}

type sendRequest struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}

// Send posts one message to the delivery endpoint.
func (s *HTTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	payload, err := json.Marshal(sendRequest{To: to, Subject: subject, HTMLBody: htmlBody})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("delivery endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}
