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

// Package analysis defines the AI content-extraction collaborator and an
// HTTP client for the analysis service. The pipeline treats this
// collaborator as potentially slow and fallible; timeouts belong to the
// caller's http.Client.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ExtractedTask is one discrete task pulled out of a task-request email.
type ExtractedTask struct {
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	AssigneeEmail string `json:"assignee_email,omitempty"`
}

// ParsedSubmission holds the structured fields extracted from an
// intelligence-agent report.
type ParsedSubmission struct {
	Sentiment string   `json:"sentiment"`
	Topics    []string `json:"topics"`
	Items     []string `json:"items"`
}

// Analyzer is the content-extraction collaborator.
type Analyzer interface {
	// ExtractTasks pulls discrete tasks (with optional assignee
	// addresses) out of a task-request email.
	ExtractTasks(ctx context.Context, subject, body string) ([]ExtractedTask, error)
	// ParseSubmission extracts structured fields from an intelligence
	// submission.
	ParseSubmission(ctx context.Context, subject, body, sender string) (*ParsedSubmission, error)
}

// Client talks to the analysis service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an analysis service client.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

type extractTasksRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type extractTasksResponse struct {
	Tasks []ExtractedTask `json:"tasks"`
}

// ExtractTasks posts the email content to the task-extraction endpoint.
func (c *Client) ExtractTasks(ctx context.Context, subject, body string) ([]ExtractedTask, error) {
	var resp extractTasksResponse
	err := c.post(ctx, "/v1/extract-tasks", extractTasksRequest{Subject: subject, Body: body}, &resp)
	if err != nil {
		return nil, fmt.Errorf("extract tasks: %w", err)
	}
	return resp.Tasks, nil
}

type parseSubmissionRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Sender  string `json:"sender"`
}

// ParseSubmission posts the report content to the submission-parsing
// endpoint.
func (c *Client) ParseSubmission(ctx context.Context, subject, body, sender string) (*ParsedSubmission, error) {
	var resp ParsedSubmission
	err := c.post(ctx, "/v1/parse-submission", parseSubmissionRequest{Subject: subject, Body: body, Sender: sender}, &resp)
	if err != nil {
		return nil, fmt.Errorf("parse submission: %w", err)
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis service returned HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
