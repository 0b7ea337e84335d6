package compress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	signaldomain "labstate/internal/signal/domain"
	statedomain "labstate/internal/state/domain"
)

// PromptVersion identifies the instruction revision, recorded on each run so
// output drift can be traced back to prompt changes.
const PromptVersion = "v1.0.0"

const systemInstruction = `You are a lab capability compressor. Your job is to maintain a compressed representation of a research lab's capabilities that an LLM can reason over effectively.

Given the lab's current state and new signals (experiments, documents, corrections), update the state to incorporate new information while maintaining compression.

Target output: under 2000 tokens when serialized as JSON.

Rules:
1. MERGE redundant information - if equipment is mentioned multiple times, consolidate
2. PRESERVE critical details - equipment capabilities, technique proficiency levels, expertise areas
3. SUMMARIZE experimental history - extract key insights, don't list every experiment
4. REMOVE outdated or superseded information
5. APPLY corrections directly - if a user says "we don't have X", remove X
6. MAINTAIN structure - output must be valid JSON matching the schema exactly

Schema:
{
  "equipment": [{"name": str, "capabilities": [str], "limitations": str|null}],
  "techniques": [{"name": str, "proficiency": "expert"|"competent"|"learning", "notes": str|null}],
  "expertise": [{"domain": str, "confidence": "high"|"medium"|"low"}],
  "organisms": [{"name": str, "strains": [str], "notes": str|null}],
  "reagents": [{"name": str, "quantity": str|null, "notes": str|null}],
  "experimental_history": [{"technique": str, "outcome": "success"|"partial"|"failed", "insight": str}],
  "resource_constraints": {"budget_notes": str|null, "time_constraints": str|null, "personnel_notes": str|null},
  "signal_count": int
}

Output ONLY valid JSON. No markdown, no explanation, just the JSON object.`

// buildUserPrompt renders the current snapshot and the signal batch into the
// single user message the capability receives.
func buildUserPrompt(current statedomain.Snapshot, signals []*signaldomain.Signal) (string, error) {
	currentJSON, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal current state: %w", err)
	}

	var b strings.Builder
	b.WriteString("Current state:\n")
	b.Write(currentJSON)
	b.WriteString("\n\nNew signals to incorporate:\n")
	for i, s := range signals {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Signal %d (kind: %s):\n", i+1, s.Kind)
		var indented bytes.Buffer
		if err := json.Indent(&indented, s.Content, "", "  "); err != nil {
			return "", fmt.Errorf("signal %s content: %w", s.ID, err)
		}
		b.Write(indented.Bytes())
	}
	b.WriteString("\n\nOutput the updated lab state JSON:")
	return b.String(), nil
}

// stripCodeFence removes an optional markdown code fence wrapping the response
// body. Models sometimes fence JSON despite the instruction not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
