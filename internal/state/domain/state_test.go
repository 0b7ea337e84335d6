package domain

import (
	"encoding/json"
	"testing"
)

func TestEmptySnapshot(t *testing.T) {
	s := Empty()
	if s.SignalCount != 0 {
		t.Errorf("SignalCount = %d, want 0", s.SignalCount)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("empty snapshot should validate: %v", err)
	}

	// Empty lists must serialize as [] rather than null so the compression
	// prompt always shows the full schema shape.
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"equipment", "techniques", "expertise", "organisms", "reagents", "experimental_history"} {
		if _, ok := m[key].([]any); !ok {
			t.Errorf("%s should serialize as a JSON array, got %T", key, m[key])
		}
	}
}

func TestSnapshotValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Snapshot)
		wantErr bool
	}{
		{"valid", func(s *Snapshot) {
			s.Equipment = []Equipment{{Name: "thermocycler", Capabilities: []string{"PCR"}}}
			s.Techniques = []Technique{{Name: "PCR", Proficiency: "expert"}}
			s.Expertise = []Expertise{{Domain: "molecular biology", Confidence: "high"}}
			s.ExperimentalHistory = []ExperimentSummary{{Technique: "PCR", Outcome: "success", Insight: "works"}}
		}, false},
		{"negative signal count", func(s *Snapshot) { s.SignalCount = -1 }, true},
		{"equipment missing name", func(s *Snapshot) {
			s.Equipment = []Equipment{{Capabilities: []string{"x"}}}
		}, true},
		{"bad proficiency", func(s *Snapshot) {
			s.Techniques = []Technique{{Name: "PCR", Proficiency: "guru"}}
		}, true},
		{"bad confidence", func(s *Snapshot) {
			s.Expertise = []Expertise{{Domain: "x", Confidence: "absolute"}}
		}, true},
		{"history missing insight", func(s *Snapshot) {
			s.ExperimentalHistory = []ExperimentSummary{{Technique: "PCR", Outcome: "success"}}
		}, true},
		{"too many reagents", func(s *Snapshot) {
			s.Reagents = make([]Reagent, 51)
			for i := range s.Reagents {
				s.Reagents[i] = Reagent{Name: "r"}
			}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Empty()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := Empty()
	s.Equipment = []Equipment{{Name: "flow cytometer", Capabilities: []string{"sorting"}, Limitations: "4 channels"}}
	s.SignalCount = 7

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.SignalCount != 7 || len(got.Equipment) != 1 || got.Equipment[0].Limitations != "4 channels" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
