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

package config

import (
	"strings"
	"testing"
)

const sampleYAML = `
server:
  port: 9090
queue:
  max_concurrent_jobs: 3
  capacity: 256
  history_limit: 100
redis:
  url: redis://localhost:6379/0
database:
  url: postgres://localhost:5432/taskbrief
analysis:
  url: http://analysis:8000
delivery:
  endpoint: https://mail.example/send
  token_url: https://auth.example/token
  client_id: intake
  client_secret: ${INTAKE_DELIVERY_SECRET}
agents:
  - name: tasks
    kind: task-intake
    owner_id: user-1
    owner_email: owner@corp.example
    security:
      policies: [rate-limit, content-scanning, domain-blacklist]
      max_requests_per_hour: 50
      blocked_domains: [spam.example]
  - name: intel
    kind: intelligence
    owner_id: user-1
    owner_email: owner@corp.example
    security:
      require_trust: true
      allow_self_service: true
`

func TestParse(t *testing.T) {
	t.Setenv("INTAKE_DELIVERY_SECRET", "s3cret")

	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Port)
	}
	if cfg.Queue.MaxConcurrentJobs != 3 || cfg.Queue.Capacity != 256 {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("redis url = %q", cfg.RedisURL)
	}
	if cfg.AnalysisURL != "http://analysis:8000" {
		t.Errorf("analysis url = %q", cfg.AnalysisURL)
	}
	if cfg.Delivery.ClientSecret != "s3cret" {
		t.Errorf("env expansion failed: client_secret = %q", cfg.Delivery.ClientSecret)
	}

	if len(cfg.Agents) != 2 {
		t.Fatalf("agents = %d, want 2", len(cfg.Agents))
	}
	sec := cfg.Agents[0].SecurityFor()
	if sec.AgentName != "tasks" || sec.MaxRequestsPerHour != 50 {
		t.Errorf("tasks security = %+v", sec)
	}
	if len(sec.EnabledPolicies) != 3 {
		t.Errorf("tasks policies = %v", sec.EnabledPolicies)
	}
	intel := cfg.Agents[1].SecurityFor()
	if !intel.RequireTrust || !intel.AllowSelfService {
		t.Errorf("intel security = %+v", intel)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("REDIS_URL", "redis://fallback:6379")

	cfg, err := Parse([]byte(`
agents:
  - name: tasks
    kind: task-intake
    owner_id: user-1
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("port = %d, want env override 7070", cfg.Port)
	}
	if cfg.RedisURL != "redis://fallback:6379" {
		t.Errorf("redis url = %q, want env fallback", cfg.RedisURL)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no agents",
			yaml:    "server:\n  port: 8080\n",
			wantErr: "no agents configured",
		},
		{
			name: "agent without a name",
			yaml: `
agents:
  - kind: task-intake
`,
			wantErr: "empty name",
		},
		{
			name: "unknown agent kind",
			yaml: `
agents:
  - name: tasks
    kind: mystery
`,
			wantErr: "unknown kind",
		},
		{
			name:    "malformed yaml",
			yaml:    "agents: [",
			wantErr: "parse config YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
