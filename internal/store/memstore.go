package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory [Store] for tests and local development. All data
// is lost on restart.
type MemStore struct {
	mu           sync.RWMutex
	ingredients  map[string]Ingredient
	suggestions  map[string]Suggestion
	preps        map[string]Prep
	reservations map[string]Reservation
	sales        map[string]SalesEntry
	press        map[string]PressArticle
	translations map[string]TranslationEntry
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		ingredients:  make(map[string]Ingredient),
		suggestions:  make(map[string]Suggestion),
		preps:        make(map[string]Prep),
		reservations: make(map[string]Reservation),
		sales:        make(map[string]SalesEntry),
		press:        make(map[string]PressArticle),
		translations: make(map[string]TranslationEntry),
	}
}

// Migrate is a no-op for the in-memory store.
func (m *MemStore) Migrate(context.Context) error { return nil }

func (m *MemStore) CreateIngredient(_ context.Context, ing *Ingredient) error {
	if err := ing.Validate(); err != nil {
		return err
	}
	ensureID(&ing.ID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.ingredients[ing.ID]; exists {
		return fmt.Errorf("%w: ingredient %q", ErrDuplicate, ing.ID)
	}
	now := time.Now()
	ing.CreatedAt, ing.UpdatedAt = now, now
	m.ingredients[ing.ID] = *ing
	return nil
}

func (m *MemStore) GetIngredient(_ context.Context, id string) (*Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ing, ok := m.ingredients[id]
	if !ok {
		return nil, fmt.Errorf("%w: ingredient %q", ErrNotFound, id)
	}
	return &ing, nil
}

func (m *MemStore) UpdateIngredient(_ context.Context, ing *Ingredient) error {
	if err := ing.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.ingredients[ing.ID]
	if !ok {
		return fmt.Errorf("%w: ingredient %q", ErrNotFound, ing.ID)
	}
	ing.CreatedAt = existing.CreatedAt
	ing.UpdatedAt = time.Now()
	m.ingredients[ing.ID] = *ing
	return nil
}

func (m *MemStore) DeleteIngredient(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ingredients, id)
	return nil
}

func (m *MemStore) ListIngredients(context.Context) ([]Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Ingredient, 0, len(m.ingredients))
	for _, ing := range m.ingredients {
		out = append(out, ing)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) CreateSuggestion(_ context.Context, sug *Suggestion) error {
	if err := sug.Validate(); err != nil {
		return err
	}
	ensureID(&sug.ID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.suggestions[sug.ID]; exists {
		return fmt.Errorf("%w: suggestion %q", ErrDuplicate, sug.ID)
	}
	now := time.Now()
	sug.CreatedAt, sug.UpdatedAt = now, now
	m.suggestions[sug.ID] = *sug
	return nil
}

func (m *MemStore) GetSuggestion(_ context.Context, id string) (*Suggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sug, ok := m.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("%w: suggestion %q", ErrNotFound, id)
	}
	return &sug, nil
}

func (m *MemStore) ListSuggestions(_ context.Context, status string) ([]Suggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Suggestion
	for _, sug := range m.suggestions {
		if status == "" || sug.Status == status {
			out = append(out, sug)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) UpdateSuggestionStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sug, ok := m.suggestions[id]
	if !ok {
		return fmt.Errorf("%w: suggestion %q", ErrNotFound, id)
	}
	sug.Status = status
	sug.UpdatedAt = time.Now()
	m.suggestions[id] = sug
	return nil
}

func (m *MemStore) CreatePrep(_ context.Context, p *Prep) error {
	if err := p.Validate(); err != nil {
		return err
	}
	ensureID(&p.ID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.preps[p.ID]; exists {
		return fmt.Errorf("%w: prep %q", ErrDuplicate, p.ID)
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	m.preps[p.ID] = *p
	return nil
}

func (m *MemStore) UpdatePrep(_ context.Context, p *Prep) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.preps[p.ID]
	if !ok {
		return fmt.Errorf("%w: prep %q", ErrNotFound, p.ID)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now()
	m.preps[p.ID] = *p
	return nil
}

func (m *MemStore) ListPreps(context.Context) ([]Prep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Prep, 0, len(m.preps))
	for _, p := range m.preps {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Done != out[j].Done {
			return !out[i].Done
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

func (m *MemStore) CreateReservation(_ context.Context, r *Reservation) error {
	if err := r.Validate(); err != nil {
		return err
	}
	ensureID(&r.ID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reservations[r.ID]; exists {
		return fmt.Errorf("%w: reservation %q", ErrDuplicate, r.ID)
	}
	now := time.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	m.reservations[r.ID] = *r
	return nil
}

func (m *MemStore) DeleteReservation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reservations, id)
	return nil
}

func (m *MemStore) ListReservations(context.Context) ([]Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Reservation, 0, len(m.reservations))
	for _, r := range m.reservations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (m *MemStore) CreateSalesEntry(_ context.Context, e *SalesEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	ensureID(&e.ID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sales[e.ID]; exists {
		return fmt.Errorf("%w: sales entry %q", ErrDuplicate, e.ID)
	}
	e.CreatedAt = time.Now()
	m.sales[e.ID] = *e
	return nil
}

func (m *MemStore) ListSalesEntries(context.Context) ([]SalesEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SalesEntry, 0, len(m.sales))
	for _, e := range m.sales {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.After(out[j].Day) })
	return out, nil
}

func (m *MemStore) CreatePressArticle(_ context.Context, a *PressArticle) error {
	if err := a.Validate(); err != nil {
		return err
	}
	ensureID(&a.ID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.press[a.ID]; exists {
		return fmt.Errorf("%w: press article %q", ErrDuplicate, a.ID)
	}
	a.CreatedAt = time.Now()
	m.press[a.ID] = *a
	return nil
}

func (m *MemStore) ListPressArticles(context.Context) ([]PressArticle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PressArticle, 0, len(m.press))
	for _, a := range m.press {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	return out, nil
}

func (m *MemStore) CreateTranslation(_ context.Context, t *TranslationEntry) error {
	if err := t.Validate(); err != nil {
		return err
	}
	ensureID(&t.ID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.translations[t.ID]; exists {
		return fmt.Errorf("%w: translation %q", ErrDuplicate, t.ID)
	}
	t.CreatedAt = time.Now()
	m.translations[t.ID] = *t
	return nil
}

func (m *MemStore) ListTranslations(context.Context) ([]TranslationEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TranslationEntry, 0, len(m.translations))
	for _, t := range m.translations {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
