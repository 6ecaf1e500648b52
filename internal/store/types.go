// Package store persists the kitchen's domain records: ingredients, preps,
// reservations, sales entries, press articles, translation entries, and the
// pending enrichment suggestions awaiting review.
//
// Two implementations exist: [PostgresStore] backed by pgx with JSONB for
// structured subfields, and [MemStore] for tests and local development. The
// semantic duplicate index ([SemanticIndex]) lives alongside the Postgres
// store and uses pgvector.
package store

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by all store implementations.
var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: record not found")

	// ErrDuplicate is returned when a record with the same ID already
	// exists.
	ErrDuplicate = errors.New("store: duplicate record")
)

// Suggestion lifecycle states.
const (
	SuggestionPending     = "pending"
	SuggestionAccepted    = "accepted"
	SuggestionRejected    = "rejected"
	SuggestionAutoApplied = "auto_applied"
)

// Ingredient is a purchasable kitchen ingredient.
type Ingredient struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Quantity     float64           `json:"quantity,omitempty"`
	Unit         string            `json:"unit,omitempty"`
	Price        float64           `json:"price"`
	Currency     string            `json:"currency"`
	Tags         []string          `json:"tags,omitempty"`
	Translations map[string]string `json:"translations,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Validate reports whether the ingredient can be persisted.
func (i *Ingredient) Validate() error {
	var errs []error
	if i.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if i.Price < 0 {
		errs = append(errs, fmt.Errorf("price %v must not be negative", i.Price))
	}
	if i.Quantity < 0 {
		errs = append(errs, fmt.Errorf("quantity %v must not be negative", i.Quantity))
	}
	if len(errs) > 0 {
		return fmt.Errorf("store: invalid ingredient: %w", errors.Join(errs...))
	}
	return nil
}

// Prep is a mise-en-place preparation task for a service day.
type Prep struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes,omitempty"`
	Station   string    `json:"station,omitempty"`
	DueDate   time.Time `json:"due_date,omitempty"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate reports whether the prep task can be persisted.
func (p *Prep) Validate() error {
	if p.Title == "" {
		return errors.New("store: invalid prep: title must not be empty")
	}
	return nil
}

// Reservation is a guest booking.
type Reservation struct {
	ID        string    `json:"id"`
	GuestName string    `json:"guest_name"`
	Phone     string    `json:"phone,omitempty"`
	PartySize int       `json:"party_size"`
	At        time.Time `json:"at"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate reports whether the reservation can be persisted.
func (r *Reservation) Validate() error {
	var errs []error
	if r.GuestName == "" {
		errs = append(errs, errors.New("guest name must not be empty"))
	}
	if r.PartySize <= 0 {
		errs = append(errs, fmt.Errorf("party size %d must be positive", r.PartySize))
	}
	if r.At.IsZero() {
		errs = append(errs, errors.New("reservation time must be set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("store: invalid reservation: %w", errors.Join(errs...))
	}
	return nil
}

// SalesEntry is one day's revenue record.
type SalesEntry struct {
	ID        string    `json:"id"`
	Day       time.Time `json:"day"`
	Gross     float64   `json:"gross"`
	Covers    int       `json:"covers,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate reports whether the sales entry can be persisted.
func (s *SalesEntry) Validate() error {
	var errs []error
	if s.Day.IsZero() {
		errs = append(errs, errors.New("day must be set"))
	}
	if s.Gross < 0 {
		errs = append(errs, fmt.Errorf("gross %v must not be negative", s.Gross))
	}
	if len(errs) > 0 {
		return fmt.Errorf("store: invalid sales entry: %w", errors.Join(errs...))
	}
	return nil
}

// PressArticle is a press mention of the restaurant.
type PressArticle struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Outlet      string    `json:"outlet,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate reports whether the press article can be persisted.
func (p *PressArticle) Validate() error {
	if p.Title == "" {
		return errors.New("store: invalid press article: title must not be empty")
	}
	return nil
}

// TranslationEntry is a reviewed menu translation, kept separately from the
// per-ingredient translation map so edits survive re-enrichment.
type TranslationEntry struct {
	ID         string    `json:"id"`
	SourceLang string    `json:"source_lang"`
	TargetLang string    `json:"target_lang"`
	Source     string    `json:"source"`
	Target     string    `json:"target"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate reports whether the translation entry can be persisted.
func (t *TranslationEntry) Validate() error {
	var errs []error
	if t.Source == "" || t.Target == "" {
		errs = append(errs, errors.New("source and target must not be empty"))
	}
	if t.SourceLang == "" || t.TargetLang == "" {
		errs = append(errs, errors.New("source and target language must be set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("store: invalid translation entry: %w", errors.Join(errs...))
	}
	return nil
}

// Suggestion is a pending enrichment result awaiting accept/reject, or the
// audit record of one that was applied automatically.
type Suggestion struct {
	ID string `json:"id"`

	// SourceText is the dictated phrase the suggestion came from.
	SourceText string `json:"source_text"`

	// Ingredient is the proposed record.
	Ingredient Ingredient `json:"ingredient"`

	// Confidence is the effective confidence at decision time.
	Confidence float64 `json:"confidence"`

	// Status is one of the Suggestion* lifecycle states.
	Status string `json:"status"`

	// MatchedKeyword is the review keyword that forced queueing, when one
	// did.
	MatchedKeyword string `json:"matched_keyword,omitempty"`

	// Degraded marks suggestions produced without AI enrichment.
	Degraded bool `json:"degraded,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate reports whether the suggestion can be persisted.
func (s *Suggestion) Validate() error {
	var errs []error
	if s.SourceText == "" {
		errs = append(errs, errors.New("source text must not be empty"))
	}
	switch s.Status {
	case SuggestionPending, SuggestionAccepted, SuggestionRejected, SuggestionAutoApplied:
	default:
		errs = append(errs, fmt.Errorf("unknown status %q", s.Status))
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		errs = append(errs, fmt.Errorf("confidence %v must be within [0,1]", s.Confidence))
	}
	if len(errs) > 0 {
		return fmt.Errorf("store: invalid suggestion: %w", errors.Join(errs...))
	}
	return nil
}
