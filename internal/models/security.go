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

package models

import "time"

// AgentSecurityConfig is the per-agent security policy configuration.
// Agents without an explicit config get the defaults.
type AgentSecurityConfig struct {
	AgentName          string   `json:"agent_name" yaml:"agent_name"`
	EnabledPolicies    []string `json:"policies" yaml:"policies"`
	MaxRequestsPerHour int      `json:"max_requests_per_hour,omitempty" yaml:"max_requests_per_hour"`
	TrustedDomains     []string `json:"trusted_domains,omitempty" yaml:"trusted_domains"`
	BlockedDomains     []string `json:"blocked_domains,omitempty" yaml:"blocked_domains"`
	RequireTrust       bool     `json:"require_trust,omitempty" yaml:"require_trust"`
	AllowSelfService   bool     `json:"allow_self_service,omitempty" yaml:"allow_self_service"`
}

// RateLimitInfo describes the rate-limit window that produced a verdict.
type RateLimitInfo struct {
	RequestsAllowed int       `json:"requests_allowed"`
	WindowSeconds   int       `json:"window_seconds"`
	CurrentCount    int       `json:"current_count"`
	ResetAt         time.Time `json:"reset_at"`
}

// ValidationResult is the structured verdict of the security pipeline.
// Verdicts are always returned as values, never as errors.
//
// Quarantine distinguishes "hold for review" from a hard block: a
// quarantined message is not delivered downstream, but it is not
// discarded either.
type ValidationResult struct {
	Allowed    bool              `json:"allowed"`
	Reason     string            `json:"reason,omitempty"`
	Quarantine bool              `json:"quarantine,omitempty"`
	RateLimit  *RateLimitInfo    `json:"rate_limit,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// TrustStatus is the state of a directional trust edge between two users.
type TrustStatus string

const (
	TrustTrusted TrustStatus = "trusted"
	TrustBlocked TrustStatus = "blocked"
	TrustPending TrustStatus = "pending"
)

// TrustEdge records that one user trusts (or blocks) another.
// Edges are directional and never self-referential.
type TrustEdge struct {
	UserID        string      `json:"user_id"`
	TrustedUserID string      `json:"trusted_user_id"`
	Status        TrustStatus `json:"status"`
}

// NotificationPreference holds a user's notification opt-in flags.
// Absence of a stored record implies the defaults.
type NotificationPreference struct {
	UserID             string `json:"user_id"`
	EmailNotifications bool   `json:"email_notifications"`
	NewTaskAlerts      bool   `json:"new_task_alerts"`
	ProjectUpdates     bool   `json:"project_updates"`
	TaskStatusChanges  bool   `json:"task_status_changes"`
	TaskAssignments    bool   `json:"task_assignments"`
	TaskDueReminders   bool   `json:"task_due_reminders"`
	WeeklyDigest       bool   `json:"weekly_digest"`
}

// DefaultNotificationPreference returns the preference record implied when
// a user has never saved one: everything on except the weekly digest.
func DefaultNotificationPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:             userID,
		EmailNotifications: true,
		NewTaskAlerts:      true,
		ProjectUpdates:     true,
		TaskStatusChanges:  true,
		TaskAssignments:    true,
		TaskDueReminders:   true,
		WeeklyDigest:       false,
	}
}
