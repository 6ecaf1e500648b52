package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// SemanticSchema is the DDL for the embedding index. It requires the
// pgvector extension and is kept separate from [Schema] so deployments
// without the extension can run the plain store.
const SemanticSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS ingredient_embeddings (
    ingredient_id TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    embedding     vector(1536) NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Embedder produces an embedding vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SimilarIngredient is a nearest-neighbour result from the embedding index.
// Distance is the cosine distance, 0 meaning identical.
type SimilarIngredient struct {
	IngredientID string
	Name         string
	Distance     float64
}

// SemanticIndex finds ingredients by embedding similarity. It backs the
// duplicate warning shown before a dictated ingredient is saved: a new name
// close to an existing one is probably the same product spelled differently.
type SemanticIndex struct {
	db       DB
	embedder Embedder
}

// NewSemanticIndex creates an index over the given database using the given
// embedder.
func NewSemanticIndex(db DB, embedder Embedder) *SemanticIndex {
	return &SemanticIndex{db: db, embedder: embedder}
}

// Migrate ensures the pgvector extension and the embeddings table exist.
func (s *SemanticIndex) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, SemanticSchema); err != nil {
		return fmt.Errorf("store: migrate semantic index: %w", err)
	}
	return nil
}

// IndexIngredient embeds the ingredient name and upserts it into the index.
func (s *SemanticIndex) IndexIngredient(ctx context.Context, ing *Ingredient) error {
	if ing.ID == "" || ing.Name == "" {
		return fmt.Errorf("store: index ingredient: id and name must be set")
	}

	vec, err := s.embedder.Embed(ctx, ing.Name)
	if err != nil {
		return fmt.Errorf("store: embed ingredient %q: %w", ing.Name, err)
	}

	const query = `
		INSERT INTO ingredient_embeddings (ingredient_id, name, embedding, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (ingredient_id) DO UPDATE SET
			name = EXCLUDED.name,
			embedding = EXCLUDED.embedding,
			updated_at = now()`

	if _, err := s.db.Exec(ctx, query, ing.ID, ing.Name, pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("store: index ingredient %q: %w", ing.ID, err)
	}
	return nil
}

// Remove drops an ingredient from the index. Removing a missing entry is not
// an error.
func (s *SemanticIndex) Remove(ctx context.Context, ingredientID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM ingredient_embeddings WHERE ingredient_id = $1`, ingredientID); err != nil {
		return fmt.Errorf("store: remove embedding %q: %w", ingredientID, err)
	}
	return nil
}

// FindSimilar embeds the query text and returns up to limit nearest
// ingredients by cosine distance, closest first.
func (s *SemanticIndex) FindSimilar(ctx context.Context, text string, limit int) ([]SimilarIngredient, error) {
	if limit <= 0 {
		limit = 5
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("store: embed query: %w", err)
	}

	const query = `
		SELECT ingredient_id, name, embedding <=> $1 AS distance
		FROM ingredient_embeddings
		ORDER BY distance
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("store: find similar: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SimilarIngredient, error) {
		var r SimilarIngredient
		err := row.Scan(&r.IngredientID, &r.Name, &r.Distance)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: find similar scan: %w", err)
	}
	return results, nil
}
