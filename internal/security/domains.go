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

// Built-in policy names.
const (
	PolicyContentScanning   = "content-scanning"
	PolicyRateLimit         = "rate-limit"
	PolicyDomainWhitelist   = "domain-whitelist"
	PolicyTrustRelationship = "trust-relationship"
	PolicyDomainBlacklist   = "domain-blacklist"
)

// senderDomain extracts the lower-cased domain part of an address.
func senderDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

// domainWhitelistPolicy blocks senders whose domain is not explicitly
// trusted. It only applies when the agent configures trusted domains.
type domainWhitelistPolicy struct{}

// NewDomainWhitelistPolicy creates the built-in domain-whitelist policy.
func NewDomainWhitelistPolicy() Policy { return domainWhitelistPolicy{} }

func (domainWhitelistPolicy) Name() string  { return PolicyDomainWhitelist }
func (domainWhitelistPolicy) Priority() int { return 150 }

func (domainWhitelistPolicy) ShouldApply(_ *models.InboundMessage, _ Context, cfg models.AgentSecurityConfig) bool {
	return len(cfg.TrustedDomains) > 0
}

func (domainWhitelistPolicy) Validate(_ context.Context, msg *models.InboundMessage, _ Context, cfg models.AgentSecurityConfig) models.ValidationResult {
	domain := senderDomain(msg.From.Address)
	for _, trusted := range cfg.TrustedDomains {
		if strings.EqualFold(domain, trusted) {
			return models.ValidationResult{
				Allowed:  true,
				Metadata: map[string]string{"domain-whitelist.domain": domain},
			}
		}
	}
	return models.ValidationResult{
		Allowed: false,
		Reason:  fmt.Sprintf("Sender domain %q is not in the trusted domains", domain),
	}
}

// domainBlacklistPolicy blocks senders whose domain is explicitly
// blocked. At priority 300 it outranks the whitelist, so a domain on
// both lists is always blocked.
type domainBlacklistPolicy struct{}

// NewDomainBlacklistPolicy creates the built-in domain-blacklist policy.
func NewDomainBlacklistPolicy() Policy { return domainBlacklistPolicy{} }

func (domainBlacklistPolicy) Name() string  { return PolicyDomainBlacklist }
func (domainBlacklistPolicy) Priority() int { return 300 }

func (domainBlacklistPolicy) ShouldApply(_ *models.InboundMessage, _ Context, cfg models.AgentSecurityConfig) bool {
	return len(cfg.BlockedDomains) > 0
}

func (domainBlacklistPolicy) Validate(_ context.Context, msg *models.InboundMessage, _ Context, cfg models.AgentSecurityConfig) models.ValidationResult {
	domain := senderDomain(msg.From.Address)
	for _, blocked := range cfg.BlockedDomains {
		if strings.EqualFold(domain, blocked) {
			return models.ValidationResult{
				Allowed: false,
				Reason:  fmt.Sprintf("Sender domain %q is blocked", domain),
			}
		}
	}
	return models.ValidationResult{
		Allowed:  true,
		Metadata: map[string]string{"domain-blacklist.domain": domain},
	}
}
