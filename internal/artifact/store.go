package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists each conversation's artifact collection as a single
// JSONB document in PostgreSQL.
//
// The store is a read-modify-write staging area: SaveVersion always
// re-reads the collection before merging, which minimizes (not
// eliminates) races between near-simultaneous writers. Last writer
// wins on the whole collection; per-version atomicity is an accepted
// limitation.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a Store. A nil logger falls back to slog.Default.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger, now: time.Now}
}

// SaveVersion merges incoming into the conversation's collection and
// writes the whole collection back. Returns the merged artifact and
// the resulting 1-based version number.
func (s *Store) SaveVersion(ctx context.Context, conversationID uuid.UUID, incoming *Artifact) (*Artifact, int, error) {
	if incoming == nil || (incoming.ID == "" && len(incoming.Versions) == 0) {
		return nil, 0, ErrInvalidID
	}
	if incoming.ID == "" {
		incoming = incoming.clone()
		incoming.ID = uuid.NewString()
	}

	// Always re-read before merging.
	collection, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, 0, err
	}

	var current *Artifact
	for _, a := range collection {
		if a.ID == incoming.ID {
			current = a
			break
		}
	}

	merged, versionNumber := Merge(current, incoming, s.now())

	replaced := false
	for i, a := range collection {
		if a.ID == merged.ID {
			collection[i] = merged
			replaced = true
			break
		}
	}
	if !replaced {
		collection = append(collection, merged)
	}

	if err := s.save(ctx, conversationID, collection); err != nil {
		return nil, 0, err
	}

	s.logger.Debug("saved artifact version",
		"conversation_id", conversationID,
		"artifact_id", merged.ID,
		"version", versionNumber)
	return merged, versionNumber, nil
}

// Get retrieves one artifact from the conversation's collection.
// Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, conversationID uuid.UUID, artifactID string) (*Artifact, error) {
	if strings.TrimSpace(artifactID) == "" {
		return nil, ErrInvalidID
	}

	collection, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for _, a := range collection {
		if a.ID == artifactID {
			return a, nil
		}
	}
	return nil, ErrNotFound
}

// List returns all artifacts in the conversation's collection, oldest
// first.
func (s *Store) List(ctx context.Context, conversationID uuid.UUID) ([]*Artifact, error) {
	return s.load(ctx, conversationID)
}

// Delete removes one artifact from the collection. Returns ErrNotFound
// if it does not exist.
func (s *Store) Delete(ctx context.Context, conversationID uuid.UUID, artifactID string) error {
	if strings.TrimSpace(artifactID) == "" {
		return ErrInvalidID
	}

	collection, err := s.load(ctx, conversationID)
	if err != nil {
		return err
	}

	kept := collection[:0]
	found := false
	for _, a := range collection {
		if a.ID == artifactID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return ErrNotFound
	}
	return s.save(ctx, conversationID, kept)
}

func (s *Store) load(ctx context.Context, conversationID uuid.UUID) ([]*Artifact, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT artifacts FROM artifact_collections WHERE conversation_id = $1`,
		conversationID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load artifact collection %s: %w", conversationID, err)
	}

	var collection []*Artifact
	if err := json.Unmarshal(raw, &collection); err != nil {
		return nil, fmt.Errorf("decode artifact collection %s: %w", conversationID, err)
	}
	return collection, nil
}

func (s *Store) save(ctx context.Context, conversationID uuid.UUID, collection []*Artifact) error {
	raw, err := json.Marshal(collection)
	if err != nil {
		return fmt.Errorf("encode artifact collection %s: %w", conversationID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO artifact_collections (conversation_id, artifacts, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (conversation_id)
		 DO UPDATE SET artifacts = EXCLUDED.artifacts, updated_at = now()`,
		conversationID, raw,
	)
	if err != nil {
		return fmt.Errorf("save artifact collection %s: %w", conversationID, err)
	}
	return nil
}
