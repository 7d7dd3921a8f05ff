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

package router

import (
	"strings"
	"sync"
)

// AgentKind distinguishes the two intake flows an agent can serve.
type AgentKind string

const (
	// AgentTaskIntake receives general task-request emails.
	AgentTaskIntake AgentKind = "task-intake"
	// AgentIntelligence receives periodic structured reports.
	AgentIntelligence AgentKind = "intelligence"
)

// Agent is a logical mailbox identity with an owning user.
type Agent struct {
	Name       string
	Kind       AgentKind
	OwnerID    string
	OwnerEmail string
}

// AgentRegistry maps agent names (the sub-address tag or local part of
// a recipient address) to agent identities.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewAgentRegistry creates an empty agent registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{agents: make(map[string]Agent)}
}

// Register adds or replaces an agent, keyed case-insensitively by name.
func (r *AgentRegistry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[strings.ToLower(a.Name)] = a
}

// Lookup resolves an agent by name.
func (r *AgentRegistry) Lookup(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[strings.ToLower(name)]
	return a, ok
}

// OwnerOf resolves the owning identity of an agent, for validation
// dry-runs.
func (r *AgentRegistry) OwnerOf(agentName string) (ownerID, ownerEmail string, ok bool) {
	a, ok := r.Lookup(agentName)
	if !ok {
		return "", "", false
	}
	return a.OwnerID, a.OwnerEmail, true
}

// SplitRecipient parses a recipient address using the sub-addressing
// convention local+tag@domain. The tag is empty when absent.
func SplitRecipient(address string) (local, tag, domain string) {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return address, "", ""
	}
	local, domain = address[:at], strings.ToLower(address[at+1:])

	if plus := strings.Index(local, "+"); plus >= 0 {
		tag = local[plus+1:]
		local = local[:plus]
	}
	return local, tag, domain
}

// agentNameFor derives the logical agent name from one recipient
// address: the sub-address tag when present, the local part otherwise.
func agentNameFor(address string) string {
	local, tag, _ := SplitRecipient(address)
	if tag != "" {
		return tag
	}
	return local
}
