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

// Taskbrief — Validation Dry-Run Command
//
// Standalone CLI tool that sends a candidate email through a running
// intake service's /validate endpoint and prints the full verdict.
// Intended for checking agent security configuration before rollout.
//
// Usage:
//
//	go run ./cmd/validate/ --agent tasks --from alice@example.com [--subject "..."] [--body "..."]
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/taskbrief/intake/internal/models"
)

func main() {
	serverFlag := flag.String("server", "http://localhost:8080", "Intake service base URL")
	agentFlag := flag.String("agent", "", "Agent name to validate against (required)")
	fromFlag := flag.String("from", "", "Sender address (required)")
	subjectFlag := flag.String("subject", "", "Message subject")
	bodyFlag := flag.String("body", "", "Message body")
	flag.Parse()

	if *agentFlag == "" || *fromFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --agent and --from are required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	payload := map[string]any{
		"agent_name": *agentFlag,
		"email": models.InboundMessage{
			MessageID: fmt.Sprintf("dry-run-%d", time.Now().UnixNano()),
			Subject:   *subjectFlag,
			From:      models.EmailAddress{Address: *fromFlag},
			Body:      models.EmailBody{ContentType: "text/plain", Content: *bodyFlag},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: marshal request: %v\n", err)
		os.Exit(1)
	}

	resp, err := http.Post(*serverFlag+"/validate", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Error: server returned HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	var result models.ValidationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		fmt.Fprintf(os.Stderr, "Error: decode response: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if !result.Allowed {
		os.Exit(2)
	}
}
