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

// Package security implements the ordered, pluggable validation pipeline
// that decides whether an agent accepts a message from a sender.
//
// Policies are registered by name in a static registry; evaluation order
// is by descending priority, computed once at registration. Evaluation
// short-circuits at the first policy that disallows, and that verdict is
// the pipeline's verdict. Verdicts are structured values, never errors.
package security

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/taskbrief/intake/internal/models"
)

// Context carries the evaluation context beyond the message itself:
// the identity of the mailbox owner the message was addressed to.
type Context struct {
	OwnerID    string
	OwnerEmail string
}

// Policy is the capability every security policy implements.
type Policy interface {
	// Name is the unique registration key.
	Name() string
	// Priority orders evaluation; higher runs first.
	Priority() int
	// ShouldApply reports whether the policy is relevant for this
	// message under this agent config.
	ShouldApply(msg *models.InboundMessage, pctx Context, cfg models.AgentSecurityConfig) bool
	// Validate evaluates the message and returns a structured verdict.
	Validate(ctx context.Context, msg *models.InboundMessage, pctx Context, cfg models.AgentSecurityConfig) models.ValidationResult
}

// Registry holds registered policies keyed by name, with the priority
// order precomputed. Registration order does not affect evaluation order.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Policy
	ordered []Policy // descending priority
}

// NewRegistry creates an empty policy registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Policy)}
}

// Register adds a policy. Duplicate names are a configuration error.
func (r *Registry) Register(p Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[p.Name()]; exists {
		return fmt.Errorf("security: policy %q already registered", p.Name())
	}
	r.byName[p.Name()] = p
	r.ordered = append(r.ordered, p)
	sort.SliceStable(r.ordered, func(i, j int) bool {
		return r.ordered[i].Priority() > r.ordered[j].Priority()
	})
	return nil
}

// Get returns the policy registered under name.
func (r *Registry) Get(name string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// ValidateConfig checks that every policy named in an agent config is
// registered. Invalid configs are rejected at configuration time, not
// per message.
func (r *Registry) ValidateConfig(cfg models.AgentSecurityConfig) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range cfg.EnabledPolicies {
		if _, ok := r.byName[name]; !ok {
			return fmt.Errorf("security: agent %q enables unknown policy %q", cfg.AgentName, name)
		}
	}
	return nil
}

// snapshot returns the priority-ordered policy list.
func (r *Registry) snapshot() []Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ordered
}

// DefaultPolicies is the policy set applied to agents with no explicit
// security configuration.
var DefaultPolicies = []string{PolicyRateLimit, PolicyContentScanning, PolicyDomainBlacklist}

// Pipeline evaluates agent security configs against the registry.
type Pipeline struct {
	registry *Registry

	mu       sync.RWMutex
	configs  map[string]models.AgentSecurityConfig
	observer func(models.ValidationResult)
}

// NewPipeline creates a pipeline over the given registry.
func NewPipeline(registry *Registry) *Pipeline {
	return &Pipeline{
		registry: registry,
		configs:  make(map[string]models.AgentSecurityConfig),
	}
}

// Configure installs the security config for one agent, validating the
// policy names first.
func (p *Pipeline) Configure(cfg models.AgentSecurityConfig) error {
	if err := p.registry.ValidateConfig(cfg); err != nil {
		return err
	}
	if len(cfg.EnabledPolicies) == 0 {
		cfg.EnabledPolicies = DefaultPolicies
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs[cfg.AgentName] = cfg
	return nil
}

// ConfigFor returns the agent's config, or the defaults when the agent
// has no explicit entry.
func (p *Pipeline) ConfigFor(agentName string) models.AgentSecurityConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cfg, ok := p.configs[agentName]; ok {
		return cfg
	}
	return models.AgentSecurityConfig{
		AgentName:       agentName,
		EnabledPolicies: DefaultPolicies,
	}
}

// SetVerdictObserver installs a callback invoked with every final
// verdict, for metrics. Set once during wiring, before traffic.
func (p *Pipeline) SetVerdictObserver(fn func(models.ValidationResult)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = fn
}

func (p *Pipeline) observe(res models.ValidationResult) models.ValidationResult {
	p.mu.RLock()
	fn := p.observer
	p.mu.RUnlock()
	if fn != nil {
		fn(res)
	}
	return res
}

// Validate runs the enabled, applicable policies for the agent in
// descending priority order. Evaluation stops at the first disallow;
// if every policy allows, the verdicts' metadata is merged into one
// allowed result. Evaluation is strictly sequential so the priority
// short-circuit stays deterministic.
func (p *Pipeline) Validate(ctx context.Context, msg *models.InboundMessage, pctx Context, agentName string) models.ValidationResult {
	cfg := p.ConfigFor(agentName)

	enabled := make(map[string]bool, len(cfg.EnabledPolicies))
	for _, name := range cfg.EnabledPolicies {
		enabled[name] = true
	}

	merged := map[string]string{}
	for _, pol := range p.registry.snapshot() {
		if !enabled[pol.Name()] {
			continue
		}
		if !pol.ShouldApply(msg, pctx, cfg) {
			continue
		}

		res := pol.Validate(ctx, msg, pctx, cfg)
		if !res.Allowed {
			return p.observe(res)
		}
		for k, v := range res.Metadata {
			merged[k] = v
		}
	}

	res := models.ValidationResult{Allowed: true}
	if len(merged) > 0 {
		res.Metadata = merged
	}
	return p.observe(res)
}
