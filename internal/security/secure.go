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

	"github.com/taskbrief/intake/internal/models"
)

// ProcessFunc is a downstream processing unit gated by validation.
// It returns a human-readable outcome description.
type ProcessFunc func(ctx context.Context, msg *models.InboundMessage) (string, error)

// SecuredResult reports what happened when a secured unit ran.
type SecuredResult struct {
	// Validation is the pipeline verdict that gated the call.
	Validation models.ValidationResult
	// Outcome describes the final disposition of the message.
	Outcome string
	// Invoked is true when the wrapped unit actually ran.
	Invoked bool
}

// RunSecured invokes fn only when the pipeline allows the message for
// the agent. On disallow the verdict is returned without invoking fn;
// a quarantine verdict is surfaced distinctly so callers can hold the
// message for review instead of dropping it.
func (p *Pipeline) RunSecured(ctx context.Context, msg *models.InboundMessage, pctx Context, agentName string, fn ProcessFunc) (SecuredResult, error) {
	verdict := p.Validate(ctx, msg, pctx, agentName)
	if !verdict.Allowed {
		outcome := "blocked: " + verdict.Reason
		if verdict.Quarantine {
			outcome = "quarantined: " + verdict.Reason
		}
		return SecuredResult{Validation: verdict, Outcome: outcome}, nil
	}

	outcome, err := fn(ctx, msg)
	return SecuredResult{Validation: verdict, Outcome: outcome, Invoked: true}, err
}
