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

// Package models defines the data structures shared across the intake service.
package models

// EmailAddress represents a sender or recipient with an address and optional name.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// EmailBody represents the message body content.
type EmailBody struct {
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// Attachment is a reference to a file attached to an inbound message.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// InboundMessage is a fully parsed inbound email ready for admission.
// It is immutable once admitted: the queue and every downstream component
// treat it as read-only.
type InboundMessage struct {
	MessageID   string         `json:"message_id"`
	Subject     string         `json:"subject"`
	From        EmailAddress   `json:"from"`
	To          []EmailAddress `json:"to"`
	CC          []EmailAddress `json:"cc,omitempty"`
	BCC         []EmailAddress `json:"bcc,omitempty"`
	Body        EmailBody      `json:"body"`
	Attachments []Attachment   `json:"attachments"`
	ReceivedAt  string         `json:"received_at,omitempty"`
}

// Category classifies an admitted message for routing.
type Category string

const (
	// CategoryIntelligenceSubmission is a periodic structured report sent
	// to an intelligence-intake agent address.
	CategoryIntelligenceSubmission Category = "intelligence_submission"
	// CategoryTaskRequest is a general task-request email.
	CategoryTaskRequest Category = "task_request"
	// CategoryOther is anything the classifier cannot route.
	CategoryOther Category = "other"
)
