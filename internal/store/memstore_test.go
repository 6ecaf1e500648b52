package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemStore_IngredientLifecycle(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	ing := &Ingredient{Name: "Avocado", Price: 2, Currency: "EUR", Tags: []string{"vegan"}}
	if err := s.CreateIngredient(ctx, ing); err != nil {
		t.Fatalf("CreateIngredient() error = %v", err)
	}
	if ing.ID == "" {
		t.Fatal("create must assign an ID")
	}
	if ing.CreatedAt.IsZero() || ing.UpdatedAt.IsZero() {
		t.Error("create must set timestamps")
	}

	got, err := s.GetIngredient(ctx, ing.ID)
	if err != nil {
		t.Fatalf("GetIngredient() error = %v", err)
	}
	if got.Name != "Avocado" || got.Price != 2 {
		t.Errorf("got = %+v", got)
	}

	got.Price = 2.5
	if err := s.UpdateIngredient(ctx, got); err != nil {
		t.Fatalf("UpdateIngredient() error = %v", err)
	}
	updated, err := s.GetIngredient(ctx, ing.ID)
	if err != nil {
		t.Fatalf("GetIngredient() after update error = %v", err)
	}
	if updated.Price != 2.5 {
		t.Errorf("price = %v, want 2.5", updated.Price)
	}
	if !updated.CreatedAt.Equal(got.CreatedAt) {
		t.Error("update must preserve created_at")
	}

	if err := s.DeleteIngredient(ctx, ing.ID); err != nil {
		t.Fatalf("DeleteIngredient() error = %v", err)
	}
	if _, err := s.GetIngredient(ctx, ing.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete error = %v, want ErrNotFound", err)
	}
}

func TestMemStore_CreateDuplicateIngredient(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	ing := &Ingredient{ID: "fixed", Name: "Avocado"}
	if err := s.CreateIngredient(ctx, ing); err != nil {
		t.Fatalf("CreateIngredient() error = %v", err)
	}
	err := s.CreateIngredient(ctx, &Ingredient{ID: "fixed", Name: "Tomate"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("error = %v, want ErrDuplicate", err)
	}
}

func TestMemStore_CreateInvalidIngredient(t *testing.T) {
	s := NewMemStore()
	if err := s.CreateIngredient(context.Background(), &Ingredient{Price: -1}); err == nil {
		t.Error("invalid ingredient must be rejected")
	}
}

func TestMemStore_ListIngredientsSortedByName(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	for _, name := range []string{"Zucchini", "Avocado", "Mangold"} {
		if err := s.CreateIngredient(ctx, &Ingredient{Name: name}); err != nil {
			t.Fatalf("CreateIngredient(%q) error = %v", name, err)
		}
	}

	list, err := s.ListIngredients(ctx)
	if err != nil {
		t.Fatalf("ListIngredients() error = %v", err)
	}
	want := []string{"Avocado", "Mangold", "Zucchini"}
	for i, w := range want {
		if list[i].Name != w {
			t.Errorf("list[%d] = %q, want %q", i, list[i].Name, w)
		}
	}
}

func TestMemStore_SuggestionStatusFlow(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	sug := &Suggestion{
		SourceText: "Avocado 2 Euro",
		Ingredient: Ingredient{Name: "Avocado", Price: 2, Currency: "EUR"},
		Confidence: 0.8,
		Status:     SuggestionPending,
	}
	if err := s.CreateSuggestion(ctx, sug); err != nil {
		t.Fatalf("CreateSuggestion() error = %v", err)
	}

	pending, err := s.ListSuggestions(ctx, SuggestionPending)
	if err != nil {
		t.Fatalf("ListSuggestions() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	if err := s.UpdateSuggestionStatus(ctx, sug.ID, SuggestionAccepted); err != nil {
		t.Fatalf("UpdateSuggestionStatus() error = %v", err)
	}

	pending, _ = s.ListSuggestions(ctx, SuggestionPending)
	if len(pending) != 0 {
		t.Error("accepted suggestion must leave the pending list")
	}
	got, err := s.GetSuggestion(ctx, sug.ID)
	if err != nil {
		t.Fatalf("GetSuggestion() error = %v", err)
	}
	if got.Status != SuggestionAccepted {
		t.Errorf("status = %q, want accepted", got.Status)
	}

	if err := s.UpdateSuggestionStatus(ctx, "missing", SuggestionRejected); !errors.Is(err, ErrNotFound) {
		t.Errorf("update of missing suggestion error = %v, want ErrNotFound", err)
	}
}

func TestMemStore_ListSuggestionsEmptyStatusReturnsAll(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	for _, status := range []string{SuggestionPending, SuggestionAutoApplied} {
		sug := &Suggestion{SourceText: "x", Confidence: 0.9, Status: status}
		if err := s.CreateSuggestion(ctx, sug); err != nil {
			t.Fatalf("CreateSuggestion() error = %v", err)
		}
	}

	all, err := s.ListSuggestions(ctx, "")
	if err != nil {
		t.Fatalf("ListSuggestions() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}
}

func TestMemStore_PrepOrdering(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	day := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	done := &Prep{Title: "Fond reduzieren", DueDate: day, Done: true}
	late := &Prep{Title: "Brot backen", DueDate: day.Add(4 * time.Hour)}
	early := &Prep{Title: "Gemüse putzen", DueDate: day.Add(1 * time.Hour)}
	for _, p := range []*Prep{done, late, early} {
		if err := s.CreatePrep(ctx, p); err != nil {
			t.Fatalf("CreatePrep(%q) error = %v", p.Title, err)
		}
	}

	list, err := s.ListPreps(ctx)
	if err != nil {
		t.Fatalf("ListPreps() error = %v", err)
	}
	want := []string{"Gemüse putzen", "Brot backen", "Fond reduzieren"}
	for i, w := range want {
		if list[i].Title != w {
			t.Errorf("list[%d] = %q, want %q", i, list[i].Title, w)
		}
	}

	early.Done = true
	if err := s.UpdatePrep(ctx, early); err != nil {
		t.Fatalf("UpdatePrep() error = %v", err)
	}
	list, _ = s.ListPreps(ctx)
	if list[0].Title != "Brot backen" {
		t.Errorf("open preps must sort first, got %q", list[0].Title)
	}
}

func TestMemStore_ReservationsOrderedByTime(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 18, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{base.Add(2 * time.Hour), base} {
		r := &Reservation{GuestName: "Guest", PartySize: 2 + i, At: at}
		if err := s.CreateReservation(ctx, r); err != nil {
			t.Fatalf("CreateReservation() error = %v", err)
		}
	}

	list, err := s.ListReservations(ctx)
	if err != nil {
		t.Fatalf("ListReservations() error = %v", err)
	}
	if !list[0].At.Equal(base) {
		t.Errorf("first reservation at %v, want %v", list[0].At, base)
	}

	if err := s.DeleteReservation(ctx, list[0].ID); err != nil {
		t.Fatalf("DeleteReservation() error = %v", err)
	}
	list, _ = s.ListReservations(ctx)
	if len(list) != 1 {
		t.Errorf("reservations = %d, want 1", len(list))
	}
}

func TestMemStore_SalesPressTranslations(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	if err := s.CreateSalesEntry(ctx, &SalesEntry{Day: day, Gross: 1830.50, Covers: 42}); err != nil {
		t.Fatalf("CreateSalesEntry() error = %v", err)
	}
	sales, err := s.ListSalesEntries(ctx)
	if err != nil || len(sales) != 1 {
		t.Fatalf("ListSalesEntries() = %v, %v", sales, err)
	}

	if err := s.CreatePressArticle(ctx, &PressArticle{Title: "Neueröffnung", Outlet: "Tagblatt"}); err != nil {
		t.Fatalf("CreatePressArticle() error = %v", err)
	}
	press, err := s.ListPressArticles(ctx)
	if err != nil || len(press) != 1 {
		t.Fatalf("ListPressArticles() = %v, %v", press, err)
	}

	entry := &TranslationEntry{SourceLang: "de", TargetLang: "en", Source: "Blumenkohl", Target: "cauliflower"}
	if err := s.CreateTranslation(ctx, entry); err != nil {
		t.Fatalf("CreateTranslation() error = %v", err)
	}
	tr, err := s.ListTranslations(ctx)
	if err != nil || len(tr) != 1 {
		t.Fatalf("ListTranslations() = %v, %v", tr, err)
	}
	if tr[0].Target != "cauliflower" {
		t.Errorf("target = %q", tr[0].Target)
	}
}
