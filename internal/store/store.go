package store

import "context"

// Store is the persistence interface for all domain records. Implementations
// must be safe for concurrent use.
//
// Get methods return [ErrNotFound] for missing records; Create methods return
// [ErrDuplicate] when the ID is already taken.
type Store interface {
	// Migrate ensures the schema exists. A no-op for in-memory stores.
	Migrate(ctx context.Context) error

	// --- Ingredients ---

	CreateIngredient(ctx context.Context, ing *Ingredient) error
	GetIngredient(ctx context.Context, id string) (*Ingredient, error)
	UpdateIngredient(ctx context.Context, ing *Ingredient) error
	DeleteIngredient(ctx context.Context, id string) error
	ListIngredients(ctx context.Context) ([]Ingredient, error)

	// --- Suggestions ---

	CreateSuggestion(ctx context.Context, s *Suggestion) error
	GetSuggestion(ctx context.Context, id string) (*Suggestion, error)

	// ListSuggestions returns suggestions filtered by status; an empty
	// status returns all.
	ListSuggestions(ctx context.Context, status string) ([]Suggestion, error)

	// UpdateSuggestionStatus moves a suggestion to a new lifecycle state.
	UpdateSuggestionStatus(ctx context.Context, id, status string) error

	// --- Preps ---

	CreatePrep(ctx context.Context, p *Prep) error
	UpdatePrep(ctx context.Context, p *Prep) error
	ListPreps(ctx context.Context) ([]Prep, error)

	// --- Reservations ---

	CreateReservation(ctx context.Context, r *Reservation) error
	DeleteReservation(ctx context.Context, id string) error
	ListReservations(ctx context.Context) ([]Reservation, error)

	// --- Sales entries ---

	CreateSalesEntry(ctx context.Context, s *SalesEntry) error
	ListSalesEntries(ctx context.Context) ([]SalesEntry, error)

	// --- Press articles ---

	CreatePressArticle(ctx context.Context, a *PressArticle) error
	ListPressArticles(ctx context.Context) ([]PressArticle, error)

	// --- Translation entries ---

	CreateTranslation(ctx context.Context, t *TranslationEntry) error
	ListTranslations(ctx context.Context) ([]TranslationEntry, error)
}
