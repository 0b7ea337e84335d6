// Package domain defines raw signals: the unprocessed inputs the distillation
// engine folds into a lab's compressed state.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the signal content union.
type Kind string

const (
	KindExperiment Kind = "experiment"
	KindDocument   Kind = "document"
	KindCorrection Kind = "correction"
)

// Valid reports whether k is a known signal kind.
func (k Kind) Valid() bool {
	switch k {
	case KindExperiment, KindDocument, KindCorrection:
		return true
	}
	return false
}

// Signal is one unit of raw observational input. Content is the raw JSON payload
// whose shape is determined by Kind; use DecodeContent for the typed form.
// A signal is mutated exactly once, from processed=false to true, when a
// distillation run that includes it commits.
type Signal struct {
	ID        string
	LabID     string
	Kind      Kind
	Content   json.RawMessage
	Processed bool
	CreatedAt time.Time
	CreatedBy string
}

// Content is the typed payload of a signal, discriminated by Kind.
type Content interface {
	Kind() Kind
	Validate() error
}

// ExperimentContent records one experimental attempt and its outcome.
type ExperimentContent struct {
	Date          *time.Time `json:"date,omitempty"`
	Technique     string     `json:"technique"`
	Outcome       string     `json:"outcome"` // success, partial, failed
	Notes         string     `json:"notes"`
	EquipmentUsed []string   `json:"equipment_used,omitempty"`
	OrganismsUsed []string   `json:"organisms_used,omitempty"`
	ReagentsUsed  []string   `json:"reagents_used,omitempty"`
}

func (ExperimentContent) Kind() Kind { return KindExperiment }

func (c ExperimentContent) Validate() error {
	if err := requireString("technique", c.Technique, 200); err != nil {
		return err
	}
	if err := oneOf("outcome", c.Outcome, "success", "partial", "failed"); err != nil {
		return err
	}
	if err := requireString("notes", c.Notes, 5000); err != nil {
		return err
	}
	if len(c.EquipmentUsed) > 20 {
		return errors.New("equipment_used must have at most 20 items")
	}
	if len(c.OrganismsUsed) > 10 {
		return errors.New("organisms_used must have at most 10 items")
	}
	if len(c.ReagentsUsed) > 30 {
		return errors.New("reagents_used must have at most 30 items")
	}
	return nil
}

// DocumentContent carries text extracted from an uploaded document.
type DocumentContent struct {
	Filename            string   `json:"filename"`
	DocumentType        string   `json:"document_type"` // protocol, paper, notes, other
	TextChunks          []string `json:"text_chunks"`
	ExtractedEquipment  []string `json:"extracted_equipment,omitempty"`
	ExtractedTechniques []string `json:"extracted_techniques,omitempty"`
}

func (DocumentContent) Kind() Kind { return KindDocument }

func (c DocumentContent) Validate() error {
	if err := requireString("filename", c.Filename, 500); err != nil {
		return err
	}
	if err := oneOf("document_type", c.DocumentType, "protocol", "paper", "notes", "other"); err != nil {
		return err
	}
	if len(c.TextChunks) == 0 {
		return errors.New("text_chunks must have at least 1 item")
	}
	if len(c.TextChunks) > 100 {
		return errors.New("text_chunks must have at most 100 items")
	}
	if len(c.ExtractedEquipment) > 20 {
		return errors.New("extracted_equipment must have at most 20 items")
	}
	if len(c.ExtractedTechniques) > 20 {
		return errors.New("extracted_techniques must have at most 20 items")
	}
	return nil
}

// CorrectionContent is a user-issued fix applied directly to the state,
// including removals ("we don't have X").
type CorrectionContent struct {
	CorrectionType string         `json:"correction_type"` // add, remove, update
	Field          string         `json:"field"`
	ItemName       string         `json:"item_name"`
	NewValue       map[string]any `json:"new_value,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

func (CorrectionContent) Kind() Kind { return KindCorrection }

func (c CorrectionContent) Validate() error {
	if err := oneOf("correction_type", c.CorrectionType, "add", "remove", "update"); err != nil {
		return err
	}
	if err := oneOf("field", c.Field,
		"equipment", "techniques", "expertise", "organisms", "reagents", "resource_constraints"); err != nil {
		return err
	}
	if err := requireString("item_name", c.ItemName, 200); err != nil {
		return err
	}
	if len(c.Reason) > 1000 {
		return errors.New("reason must be at most 1000 characters")
	}
	return nil
}

// ParseContent decodes raw into the typed content for kind and validates it.
// The switch is exhaustive over Kind; unknown kinds are rejected.
func ParseContent(kind Kind, raw json.RawMessage) (Content, error) {
	var c Content
	switch kind {
	case KindExperiment:
		var v ExperimentContent
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("experiment content: %w", err)
		}
		c = v
	case KindDocument:
		var v DocumentContent
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("document content: %w", err)
		}
		c = v
	case KindCorrection:
		var v CorrectionContent
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("correction content: %w", err)
		}
		c = v
	default:
		return nil, fmt.Errorf("unknown signal kind %q", kind)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeContent returns the signal's typed content, validated.
func (s *Signal) DecodeContent() (Content, error) {
	return ParseContent(s.Kind, s.Content)
}

func requireString(field, s string, max int) error {
	if s == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(s) > max {
		return fmt.Errorf("%s must be at most %d characters", field, max)
	}
	return nil
}

func oneOf(field, s string, allowed ...string) error {
	for _, a := range allowed {
		if s == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", field, allowed, s)
}
