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

package security

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskbrief/intake/internal/models"
)

// suspiciousPatterns are scanned against subject and body. A match
// quarantines the message for review rather than hard-blocking it.
var suspiciousPatterns = []string{
	// Phishing lures
	"verify your account",
	"confirm your password",
	"password has expired",
	"unusual sign-in activity",
	"click here to verify",
	"suspended your account",

	// Payment fraud
	"wire transfer",
	"western union",
	"bitcoin payment",
	"gift card",
	"lottery winner",
	"unclaimed inheritance",
	"advance fee",

	// Script/markup injection
	"<script",
	"javascript:",
	"onerror=",
	"onload=",

	// Urgency pressure
	"act immediately or",
	"final warning",
	"account will be deleted",
}

// contentScanningPolicy quarantines messages matching a fixed set of
// suspicious patterns. At priority 75 it runs last, so an over-limit or
// blocked sender never reaches the scanner.
type contentScanningPolicy struct{}

// NewContentScanningPolicy creates the built-in content-scanning policy.
func NewContentScanningPolicy() Policy { return contentScanningPolicy{} }

func (contentScanningPolicy) Name() string  { return PolicyContentScanning }
func (contentScanningPolicy) Priority() int { return 75 }

func (contentScanningPolicy) ShouldApply(*models.InboundMessage, Context, models.AgentSecurityConfig) bool {
	return true
}

func (contentScanningPolicy) Validate(_ context.Context, msg *models.InboundMessage, _ Context, _ models.AgentSecurityConfig) models.ValidationResult {
	haystack := strings.ToLower(msg.Subject + "\n" + msg.Body.Content)

	for _, pattern := range suspiciousPatterns {
		if strings.Contains(haystack, pattern) {
			return models.ValidationResult{
				Allowed:    false,
				Quarantine: true,
				Reason:     fmt.Sprintf("Suspicious content detected: %q", pattern),
				Metadata:   map[string]string{"content-scanning.pattern": pattern},
			}
		}
	}

	return models.ValidationResult{
		Allowed:  true,
		Metadata: map[string]string{"content-scanning.clean": "true"},
	}
}

// RegisterBuiltins registers the five built-in policies.
func RegisterBuiltins(reg *Registry, windows *RateWindows, checker TrustChecker) error {
	policies := []Policy{
		NewContentScanningPolicy(),
		NewRateLimitPolicy(windows),
		NewDomainWhitelistPolicy(),
		NewTrustRelationshipPolicy(checker),
		NewDomainBlacklistPolicy(),
	}
	for _, p := range policies {
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	return nil
}
