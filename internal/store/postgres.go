package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for all domain tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS ingredients (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    quantity     DOUBLE PRECISION NOT NULL DEFAULT 0,
    unit         TEXT NOT NULL DEFAULT '',
    price        DOUBLE PRECISION NOT NULL DEFAULT 0,
    currency     TEXT NOT NULL DEFAULT '',
    tags         JSONB NOT NULL DEFAULT '[]',
    translations JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_ingredients_name ON ingredients(name);

CREATE TABLE IF NOT EXISTS suggestions (
    id              TEXT PRIMARY KEY,
    source_text     TEXT NOT NULL,
    ingredient      JSONB NOT NULL DEFAULT '{}',
    confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
    status          TEXT NOT NULL DEFAULT 'pending',
    matched_keyword TEXT NOT NULL DEFAULT '',
    degraded        BOOLEAN NOT NULL DEFAULT false,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_suggestions_status ON suggestions(status);

CREATE TABLE IF NOT EXISTS preps (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    notes      TEXT NOT NULL DEFAULT '',
    station    TEXT NOT NULL DEFAULT '',
    due_date   TIMESTAMPTZ,
    done       BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reservations (
    id         TEXT PRIMARY KEY,
    guest_name TEXT NOT NULL,
    phone      TEXT NOT NULL DEFAULT '',
    party_size INTEGER NOT NULL,
    at         TIMESTAMPTZ NOT NULL,
    notes      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_reservations_at ON reservations(at);

CREATE TABLE IF NOT EXISTS sales_entries (
    id         TEXT PRIMARY KEY,
    day        TIMESTAMPTZ NOT NULL,
    gross      DOUBLE PRECISION NOT NULL DEFAULT 0,
    covers     INTEGER NOT NULL DEFAULT 0,
    notes      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS press_articles (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL,
    outlet       TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMPTZ,
    summary      TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS translation_entries (
    id          TEXT PRIMARY KEY,
    source_lang TEXT NOT NULL,
    target_lang TEXT NOT NULL,
    source      TEXT NOT NULL,
    target      TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Structured
// subfields (tags, translations, suggestion payloads) are serialised as
// JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] over the given connection or
// pool. The caller is responsible for calling [PostgresStore.Migrate] before
// issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating all tables and indexes if they
// do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// ensureID assigns a fresh UUID when the record carries none.
func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// --- Ingredients ---

// CreateIngredient inserts a new ingredient, assigning a UUID when the ID is
// empty.
func (s *PostgresStore) CreateIngredient(ctx context.Context, ing *Ingredient) error {
	if err := ing.Validate(); err != nil {
		return err
	}
	ensureID(&ing.ID)

	tagsJSON, translationsJSON, err := marshalIngredientFields(ing)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO ingredients (id, name, quantity, unit, price, currency, tags, translations)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		ing.ID, ing.Name, ing.Quantity, ing.Unit, ing.Price, ing.Currency,
		tagsJSON, translationsJSON,
	).Scan(&ing.CreatedAt, &ing.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: ingredient %q", ErrDuplicate, ing.ID)
		}
		return fmt.Errorf("store: create ingredient: %w", err)
	}
	return nil
}

// GetIngredient retrieves an ingredient by ID.
func (s *PostgresStore) GetIngredient(ctx context.Context, id string) (*Ingredient, error) {
	const query = `
		SELECT id, name, quantity, unit, price, currency, tags, translations, created_at, updated_at
		FROM ingredients WHERE id = $1`

	ing, err := scanIngredient(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: ingredient %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("store: get ingredient %q: %w", id, err)
	}
	return ing, nil
}

// UpdateIngredient replaces an existing ingredient.
func (s *PostgresStore) UpdateIngredient(ctx context.Context, ing *Ingredient) error {
	if err := ing.Validate(); err != nil {
		return err
	}

	tagsJSON, translationsJSON, err := marshalIngredientFields(ing)
	if err != nil {
		return err
	}

	const query = `
		UPDATE ingredients SET
			name = $2, quantity = $3, unit = $4, price = $5, currency = $6,
			tags = $7, translations = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err = s.db.QueryRow(ctx, query,
		ing.ID, ing.Name, ing.Quantity, ing.Unit, ing.Price, ing.Currency,
		tagsJSON, translationsJSON,
	).Scan(&ing.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: ingredient %q", ErrNotFound, ing.ID)
		}
		return fmt.Errorf("store: update ingredient: %w", err)
	}
	return nil
}

// DeleteIngredient removes an ingredient by ID. Deleting a missing ingredient
// is not an error.
func (s *PostgresStore) DeleteIngredient(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM ingredients WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: delete ingredient %q: %w", id, err)
	}
	return nil
}

// ListIngredients returns all ingredients ordered by name.
func (s *PostgresStore) ListIngredients(ctx context.Context) ([]Ingredient, error) {
	const query = `
		SELECT id, name, quantity, unit, price, currency, tags, translations, created_at, updated_at
		FROM ingredients ORDER BY name`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list ingredients: %w", err)
	}
	defer rows.Close()

	var out []Ingredient
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list ingredients scan: %w", err)
		}
		out = append(out, *ing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list ingredients: %w", err)
	}
	return out, nil
}

func marshalIngredientFields(ing *Ingredient) (tags, translations []byte, err error) {
	tags, err = json.Marshal(emptySlice(ing.Tags))
	if err != nil {
		return nil, nil, fmt.Errorf("store: marshal tags: %w", err)
	}
	translations, err = json.Marshal(emptyMap(ing.Translations))
	if err != nil {
		return nil, nil, fmt.Errorf("store: marshal translations: %w", err)
	}
	return tags, translations, nil
}

func scanIngredient(row pgx.Row) (*Ingredient, error) {
	var ing Ingredient
	var tagsJSON, translationsJSON []byte
	if err := row.Scan(
		&ing.ID, &ing.Name, &ing.Quantity, &ing.Unit, &ing.Price, &ing.Currency,
		&tagsJSON, &translationsJSON, &ing.CreatedAt, &ing.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tagsJSON, &ing.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(translationsJSON, &ing.Translations); err != nil {
		return nil, fmt.Errorf("unmarshal translations: %w", err)
	}
	return &ing, nil
}

// --- Suggestions ---

// CreateSuggestion inserts a new suggestion, assigning a UUID when the ID is
// empty.
func (s *PostgresStore) CreateSuggestion(ctx context.Context, sug *Suggestion) error {
	if err := sug.Validate(); err != nil {
		return err
	}
	ensureID(&sug.ID)

	payload, err := json.Marshal(sug.Ingredient)
	if err != nil {
		return fmt.Errorf("store: marshal suggestion payload: %w", err)
	}

	const query = `
		INSERT INTO suggestions (id, source_text, ingredient, confidence, status, matched_keyword, degraded)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		sug.ID, sug.SourceText, payload, sug.Confidence, sug.Status, sug.MatchedKeyword, sug.Degraded,
	).Scan(&sug.CreatedAt, &sug.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: suggestion %q", ErrDuplicate, sug.ID)
		}
		return fmt.Errorf("store: create suggestion: %w", err)
	}
	return nil
}

// GetSuggestion retrieves a suggestion by ID.
func (s *PostgresStore) GetSuggestion(ctx context.Context, id string) (*Suggestion, error) {
	const query = `
		SELECT id, source_text, ingredient, confidence, status, matched_keyword, degraded, created_at, updated_at
		FROM suggestions WHERE id = $1`

	sug, err := scanSuggestion(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: suggestion %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("store: get suggestion %q: %w", id, err)
	}
	return sug, nil
}

// ListSuggestions returns suggestions newest first, optionally filtered by
// status.
func (s *PostgresStore) ListSuggestions(ctx context.Context, status string) ([]Suggestion, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.Query(ctx, `
			SELECT id, source_text, ingredient, confidence, status, matched_keyword, degraded, created_at, updated_at
			FROM suggestions ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT id, source_text, ingredient, confidence, status, matched_keyword, degraded, created_at, updated_at
			FROM suggestions WHERE status = $1 ORDER BY created_at DESC`, status)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list suggestions: %w", err)
	}
	defer rows.Close()

	var out []Suggestion
	for rows.Next() {
		sug, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list suggestions scan: %w", err)
		}
		out = append(out, *sug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list suggestions: %w", err)
	}
	return out, nil
}

// UpdateSuggestionStatus moves a suggestion to a new lifecycle state.
func (s *PostgresStore) UpdateSuggestionStatus(ctx context.Context, id, status string) error {
	const query = `
		UPDATE suggestions SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	var updated time.Time
	if err := s.db.QueryRow(ctx, query, id, status).Scan(&updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: suggestion %q", ErrNotFound, id)
		}
		return fmt.Errorf("store: update suggestion status: %w", err)
	}
	return nil
}

func scanSuggestion(row pgx.Row) (*Suggestion, error) {
	var sug Suggestion
	var payload []byte
	if err := row.Scan(
		&sug.ID, &sug.SourceText, &payload, &sug.Confidence, &sug.Status,
		&sug.MatchedKeyword, &sug.Degraded, &sug.CreatedAt, &sug.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &sug.Ingredient); err != nil {
		return nil, fmt.Errorf("unmarshal ingredient payload: %w", err)
	}
	return &sug, nil
}

// --- Preps ---

// CreatePrep inserts a new prep task.
func (s *PostgresStore) CreatePrep(ctx context.Context, p *Prep) error {
	if err := p.Validate(); err != nil {
		return err
	}
	ensureID(&p.ID)

	const query = `
		INSERT INTO preps (id, title, notes, station, due_date, done)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, query,
		p.ID, p.Title, p.Notes, p.Station, p.DueDate, p.Done,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: prep %q", ErrDuplicate, p.ID)
		}
		return fmt.Errorf("store: create prep: %w", err)
	}
	return nil
}

// UpdatePrep replaces an existing prep task.
func (s *PostgresStore) UpdatePrep(ctx context.Context, p *Prep) error {
	if err := p.Validate(); err != nil {
		return err
	}

	const query = `
		UPDATE preps SET title = $2, notes = $3, station = $4, due_date = $5, done = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := s.db.QueryRow(ctx, query, p.ID, p.Title, p.Notes, p.Station, p.DueDate, p.Done).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: prep %q", ErrNotFound, p.ID)
		}
		return fmt.Errorf("store: update prep: %w", err)
	}
	return nil
}

// ListPreps returns all prep tasks, open ones first, then by due date.
func (s *PostgresStore) ListPreps(ctx context.Context) ([]Prep, error) {
	const query = `
		SELECT id, title, notes, station, due_date, done, created_at, updated_at
		FROM preps ORDER BY done, due_date NULLS LAST`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list preps: %w", err)
	}
	defer rows.Close()

	var out []Prep
	for rows.Next() {
		var p Prep
		if err := rows.Scan(&p.ID, &p.Title, &p.Notes, &p.Station, &p.DueDate, &p.Done, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: list preps scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list preps: %w", err)
	}
	return out, nil
}

// --- Reservations ---

// CreateReservation inserts a new reservation.
func (s *PostgresStore) CreateReservation(ctx context.Context, r *Reservation) error {
	if err := r.Validate(); err != nil {
		return err
	}
	ensureID(&r.ID)

	const query = `
		INSERT INTO reservations (id, guest_name, phone, party_size, at, notes)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, query,
		r.ID, r.GuestName, r.Phone, r.PartySize, r.At, r.Notes,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: reservation %q", ErrDuplicate, r.ID)
		}
		return fmt.Errorf("store: create reservation: %w", err)
	}
	return nil
}

// DeleteReservation removes a reservation by ID.
func (s *PostgresStore) DeleteReservation(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: delete reservation %q: %w", id, err)
	}
	return nil
}

// ListReservations returns all reservations ordered by time.
func (s *PostgresStore) ListReservations(ctx context.Context) ([]Reservation, error) {
	const query = `
		SELECT id, guest_name, phone, party_size, at, notes, created_at, updated_at
		FROM reservations ORDER BY at`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(&r.ID, &r.GuestName, &r.Phone, &r.PartySize, &r.At, &r.Notes, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: list reservations scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list reservations: %w", err)
	}
	return out, nil
}

// --- Sales entries ---

// CreateSalesEntry inserts a new sales entry.
func (s *PostgresStore) CreateSalesEntry(ctx context.Context, e *SalesEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	ensureID(&e.ID)

	const query = `
		INSERT INTO sales_entries (id, day, gross, covers, notes)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query, e.ID, e.Day, e.Gross, e.Covers, e.Notes).Scan(&e.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: sales entry %q", ErrDuplicate, e.ID)
		}
		return fmt.Errorf("store: create sales entry: %w", err)
	}
	return nil
}

// ListSalesEntries returns all sales entries newest day first.
func (s *PostgresStore) ListSalesEntries(ctx context.Context) ([]SalesEntry, error) {
	const query = `
		SELECT id, day, gross, covers, notes, created_at
		FROM sales_entries ORDER BY day DESC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list sales entries: %w", err)
	}
	defer rows.Close()

	var out []SalesEntry
	for rows.Next() {
		var e SalesEntry
		if err := rows.Scan(&e.ID, &e.Day, &e.Gross, &e.Covers, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list sales entries scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list sales entries: %w", err)
	}
	return out, nil
}

// --- Press articles ---

// CreatePressArticle inserts a new press article.
func (s *PostgresStore) CreatePressArticle(ctx context.Context, a *PressArticle) error {
	if err := a.Validate(); err != nil {
		return err
	}
	ensureID(&a.ID)

	const query = `
		INSERT INTO press_articles (id, title, outlet, url, published_at, summary)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		a.ID, a.Title, a.Outlet, a.URL, a.PublishedAt, a.Summary,
	).Scan(&a.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: press article %q", ErrDuplicate, a.ID)
		}
		return fmt.Errorf("store: create press article: %w", err)
	}
	return nil
}

// ListPressArticles returns all press articles newest first.
func (s *PostgresStore) ListPressArticles(ctx context.Context) ([]PressArticle, error) {
	const query = `
		SELECT id, title, outlet, url, published_at, summary, created_at
		FROM press_articles ORDER BY published_at DESC NULLS LAST`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list press articles: %w", err)
	}
	defer rows.Close()

	var out []PressArticle
	for rows.Next() {
		var a PressArticle
		if err := rows.Scan(&a.ID, &a.Title, &a.Outlet, &a.URL, &a.PublishedAt, &a.Summary, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list press articles scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list press articles: %w", err)
	}
	return out, nil
}

// --- Translation entries ---

// CreateTranslation inserts a new translation entry.
func (s *PostgresStore) CreateTranslation(ctx context.Context, t *TranslationEntry) error {
	if err := t.Validate(); err != nil {
		return err
	}
	ensureID(&t.ID)

	const query = `
		INSERT INTO translation_entries (id, source_lang, target_lang, source, target)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		t.ID, t.SourceLang, t.TargetLang, t.Source, t.Target,
	).Scan(&t.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: translation %q", ErrDuplicate, t.ID)
		}
		return fmt.Errorf("store: create translation: %w", err)
	}
	return nil
}

// ListTranslations returns all translation entries newest first.
func (s *PostgresStore) ListTranslations(ctx context.Context) ([]TranslationEntry, error) {
	const query = `
		SELECT id, source_lang, target_lang, source, target, created_at
		FROM translation_entries ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list translations: %w", err)
	}
	defer rows.Close()

	var out []TranslationEntry
	for rows.Next() {
		var t TranslationEntry
		if err := rows.Scan(&t.ID, &t.SourceLang, &t.TargetLang, &t.Source, &t.Target, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list translations scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list translations: %w", err)
	}
	return out, nil
}

// --- helpers ---

// emptySlice returns s if non-nil, otherwise an empty non-nil slice so JSON
// marshalling produces "[]" instead of "null".
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// emptyMap returns m if non-nil, otherwise an empty non-nil map so JSON
// marshalling produces "{}" instead of "null".
func emptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
