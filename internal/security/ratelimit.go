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
	"strconv"
	"sync"
	"time"

	"github.com/taskbrief/intake/internal/models"
)

// DefaultMaxRequestsPerHour applies when the agent config does not set
// an explicit limit.
const DefaultMaxRequestsPerHour = 100

// rateWindowDuration is the fixed rate-limit window length.
const rateWindowDuration = time.Hour

type rateKey struct {
	sender string
	agent  string
}

type rateEntry struct {
	windowStart time.Time
	count       int
}

// RateWindows tracks per-(sender, agent) request counts in fixed
// windows. Incr performs the increment and the window rollover under
// one lock acquisition so concurrent senders never lose updates.
type RateWindows struct {
	mu      sync.Mutex
	entries map[rateKey]*rateEntry
	now     func() time.Time
}

// NewRateWindows creates an empty window store.
func NewRateWindows() *RateWindows {
	return &RateWindows{
		entries: make(map[rateKey]*rateEntry),
		now:     time.Now,
	}
}

// Incr increments the counter for (sender, agent), rolling the window
// over if it has expired, and returns the post-increment count and the
// window's reset time.
func (w *RateWindows) Incr(sender, agent string) (count int, resetAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	key := rateKey{sender: sender, agent: agent}

	e, ok := w.entries[key]
	if !ok || now.Sub(e.windowStart) >= rateWindowDuration {
		e = &rateEntry{windowStart: now}
		w.entries[key] = e
	}
	e.count++
	return e.count, e.windowStart.Add(rateWindowDuration)
}

// rateLimitPolicy blocks senders that exceed the agent's hourly budget.
type rateLimitPolicy struct {
	windows *RateWindows
}

// NewRateLimitPolicy creates the built-in rate-limit policy over the
// given window store.
func NewRateLimitPolicy(windows *RateWindows) Policy {
	return &rateLimitPolicy{windows: windows}
}

func (p *rateLimitPolicy) Name() string  { return PolicyRateLimit }
func (p *rateLimitPolicy) Priority() int { return 100 }

func (p *rateLimitPolicy) ShouldApply(*models.InboundMessage, Context, models.AgentSecurityConfig) bool {
	return true
}

func (p *rateLimitPolicy) Validate(_ context.Context, msg *models.InboundMessage, _ Context, cfg models.AgentSecurityConfig) models.ValidationResult {
	max := cfg.MaxRequestsPerHour
	if max <= 0 {
		max = DefaultMaxRequestsPerHour
	}

	count, resetAt := p.windows.Incr(msg.From.Address, cfg.AgentName)

	info := &models.RateLimitInfo{
		RequestsAllowed: max,
		WindowSeconds:   int(rateWindowDuration.Seconds()),
		CurrentCount:    count,
		ResetAt:         resetAt,
	}

	if count > max {
		return models.ValidationResult{
			Allowed:   false,
			Reason:    fmt.Sprintf("Rate limit exceeded: %d/%d requests per hour", count, max),
			RateLimit: info,
		}
	}

	return models.ValidationResult{
		Allowed:   true,
		RateLimit: info,
		Metadata: map[string]string{
			"rate-limit.count": strconv.Itoa(count),
		},
	}
}
