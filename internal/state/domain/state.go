// Package domain defines lab state versions: immutable compressed snapshots of a
// lab's capabilities, appended one version at a time by the distillation engine.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// StateVersion is one committed snapshot in a lab's version log.
// For a given lab, versions are unique and contiguous starting at 1; the lab's
// current state is the row with the maximum version. Rows are never edited.
type StateVersion struct {
	ID         string
	LabID      string
	Version    int
	State      Snapshot
	TokenCount *int // nil when measurement was unavailable
	CreatedAt  time.Time
	CreatedBy  string
}

// Snapshot is the compressed lab state representation, targeted at roughly
// 2K tokens when serialized to JSON.
type Snapshot struct {
	Equipment           []Equipment         `json:"equipment"`
	Techniques          []Technique         `json:"techniques"`
	Expertise           []Expertise         `json:"expertise"`
	Organisms           []Organism          `json:"organisms"`
	Reagents            []Reagent           `json:"reagents"`
	ExperimentalHistory []ExperimentSummary `json:"experimental_history"`
	ResourceConstraints ResourceConstraints `json:"resource_constraints"`
	// SignalCount is the total number of signals folded into this snapshot.
	// It only ever increases across versions.
	SignalCount int `json:"signal_count"`
}

// Equipment is a piece of laboratory equipment with its capabilities.
type Equipment struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	Limitations  string   `json:"limitations,omitempty"`
}

// Technique is a laboratory technique with a proficiency level.
type Technique struct {
	Name        string `json:"name"`
	Proficiency string `json:"proficiency"` // expert, competent, learning
	Notes       string `json:"notes,omitempty"`
}

// Expertise is a domain of expertise with a confidence level.
type Expertise struct {
	Domain     string `json:"domain"`
	Confidence string `json:"confidence"` // high, medium, low
}

// Organism is a model organism available in the lab.
type Organism struct {
	Name    string   `json:"name"`
	Strains []string `json:"strains"`
	Notes   string   `json:"notes,omitempty"`
}

// Reagent is a key reagent or material available.
type Reagent struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// ExperimentSummary is a compressed experimental outcome.
type ExperimentSummary struct {
	Technique string `json:"technique"`
	Outcome   string `json:"outcome"` // success, partial, failed
	Insight   string `json:"insight"`
}

// ResourceConstraints summarizes lab resource limits.
type ResourceConstraints struct {
	BudgetNotes     string `json:"budget_notes,omitempty"`
	TimeConstraints string `json:"time_constraints,omitempty"`
	PersonnelNotes  string `json:"personnel_notes,omitempty"`
}

// Empty returns the canonical empty snapshot used before a lab has any version.
func Empty() Snapshot {
	return Snapshot{
		Equipment:           []Equipment{},
		Techniques:          []Technique{},
		Expertise:           []Expertise{},
		Organisms:           []Organism{},
		Reagents:            []Reagent{},
		ExperimentalHistory: []ExperimentSummary{},
	}
}

// Validate checks the snapshot against the state schema: list caps, required
// names, enum fields, and a non-negative signal count. A snapshot that fails
// validation must never be committed.
func (s *Snapshot) Validate() error {
	if s.SignalCount < 0 {
		return errors.New("signal_count must be non-negative")
	}
	if len(s.Equipment) > 50 {
		return errors.New("equipment must have at most 50 entries")
	}
	for i, e := range s.Equipment {
		if err := name("equipment", i, e.Name); err != nil {
			return err
		}
		if len(e.Capabilities) > 20 {
			return fmt.Errorf("equipment[%d]: capabilities must have at most 20 items", i)
		}
	}
	if len(s.Techniques) > 50 {
		return errors.New("techniques must have at most 50 entries")
	}
	for i, tq := range s.Techniques {
		if err := name("techniques", i, tq.Name); err != nil {
			return err
		}
		if err := enum("techniques", i, "proficiency", tq.Proficiency, "expert", "competent", "learning"); err != nil {
			return err
		}
	}
	if len(s.Expertise) > 30 {
		return errors.New("expertise must have at most 30 entries")
	}
	for i, e := range s.Expertise {
		if err := name("expertise", i, e.Domain); err != nil {
			return err
		}
		if err := enum("expertise", i, "confidence", e.Confidence, "high", "medium", "low"); err != nil {
			return err
		}
	}
	if len(s.Organisms) > 20 {
		return errors.New("organisms must have at most 20 entries")
	}
	for i, o := range s.Organisms {
		if err := name("organisms", i, o.Name); err != nil {
			return err
		}
		if len(o.Strains) > 20 {
			return fmt.Errorf("organisms[%d]: strains must have at most 20 items", i)
		}
	}
	if len(s.Reagents) > 50 {
		return errors.New("reagents must have at most 50 entries")
	}
	for i, rg := range s.Reagents {
		if err := name("reagents", i, rg.Name); err != nil {
			return err
		}
	}
	if len(s.ExperimentalHistory) > 30 {
		return errors.New("experimental_history must have at most 30 entries")
	}
	for i, h := range s.ExperimentalHistory {
		if err := name("experimental_history", i, h.Technique); err != nil {
			return err
		}
		if err := enum("experimental_history", i, "outcome", h.Outcome, "success", "partial", "failed"); err != nil {
			return err
		}
		if h.Insight == "" {
			return fmt.Errorf("experimental_history[%d]: insight is required", i)
		}
	}
	return nil
}

func name(list string, i int, v string) error {
	if v == "" {
		return fmt.Errorf("%s[%d]: name is required", list, i)
	}
	if len(v) > 200 {
		return fmt.Errorf("%s[%d]: name must be at most 200 characters", list, i)
	}
	return nil
}

func enum(list string, i int, field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s[%d]: %s must be one of %v, got %q", list, i, field, allowed, v)
}
