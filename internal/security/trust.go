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
	"log/slog"
	"strings"

	"github.com/taskbrief/intake/internal/models"
)

// TrustChecker resolves the trust relationship from a mailbox owner to
// a sender address. An empty status means no edge exists.
type TrustChecker interface {
	TrustStatus(ctx context.Context, ownerID, senderEmail string) (models.TrustStatus, error)
}

// trustRelationshipPolicy blocks senders the mailbox owner has not
// explicitly trusted. Applies only when the agent requires trust.
type trustRelationshipPolicy struct {
	checker TrustChecker
}

// NewTrustRelationshipPolicy creates the built-in trust-relationship
// policy over the given checker.
func NewTrustRelationshipPolicy(checker TrustChecker) Policy {
	return &trustRelationshipPolicy{checker: checker}
}

func (p *trustRelationshipPolicy) Name() string  { return PolicyTrustRelationship }
func (p *trustRelationshipPolicy) Priority() int { return 200 }

func (p *trustRelationshipPolicy) ShouldApply(_ *models.InboundMessage, _ Context, cfg models.AgentSecurityConfig) bool {
	return cfg.RequireTrust
}

func (p *trustRelationshipPolicy) Validate(ctx context.Context, msg *models.InboundMessage, pctx Context, cfg models.AgentSecurityConfig) models.ValidationResult {
	// Owners may always message their own agents when self-service is on.
	if cfg.AllowSelfService && pctx.OwnerEmail != "" && strings.EqualFold(msg.From.Address, pctx.OwnerEmail) {
		return models.ValidationResult{
			Allowed:  true,
			Metadata: map[string]string{"trust-relationship.self_service": "true"},
		}
	}

	status, err := p.checker.TrustStatus(ctx, pctx.OwnerID, msg.From.Address)
	if err != nil {
		// Fail closed: an unverifiable sender is not a trusted sender.
		slog.Warn("trust lookup failed",
			"owner", pctx.OwnerID,
			"sender", msg.From.Address,
			"error", err,
		)
		return models.ValidationResult{
			Allowed: false,
			Reason:  "Trust relationship could not be verified",
		}
	}

	if status != models.TrustTrusted {
		return models.ValidationResult{
			Allowed: false,
			Reason:  "Sender is not a trusted contact of the recipient",
		}
	}

	return models.ValidationResult{
		Allowed:  true,
		Metadata: map[string]string{"trust-relationship.status": string(status)},
	}
}
