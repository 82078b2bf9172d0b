package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-engine/internal/config"
	"github.com/kozaktomas/face-engine/internal/database"
	"github.com/pgvector/pgvector-go"
)

// hnswEfSearch is the pgvector HNSW candidate pool size for nearest-neighbor queries.
const hnswEfSearch = 100

// Store keeps enrollment records in a pgvector column.
type Store struct {
	pool    *Pool
	writeMu sync.Mutex
}

// Open connects to PostgreSQL using cfg.URL.
func Open(cfg *config.DatabaseConfig) (*Store, error) {
	pool, err := NewPool(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// NewStore wraps an existing pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// InitializeSchema applies pending migrations and records or verifies meta.
// When the dimension is first recorded the embedding column is narrowed to
// vector(dim) and an HNSW cosine index is created.
func (s *Store) InitializeSchema(ctx context.Context, meta database.StoreMeta) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.pool.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", database.ErrSchema, err)
	}

	tx, err := s.pool.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", database.ErrSchema, err)
	}
	defer tx.Rollback()

	stored, found, err := readMeta(ctx, tx)
	if err != nil {
		return fmt.Errorf("%w: %w", database.ErrSchema, err)
	}

	if found {
		if err := database.CheckMeta(stored, meta); err != nil {
			return err
		}
		if meta.Encoder != "" && stored.Encoder != meta.Encoder {
			log.Printf("Warning: store was created by encoder %q, now using %q", stored.Encoder, meta.Encoder)
		}
		return nil
	}
	if meta.Dim <= 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO store_meta (id, dim, encoder) VALUES (1, $1, $2)`, meta.Dim, meta.Encoder); err != nil {
		return fmt.Errorf("%w: write store meta: %w", database.ErrSchema, err)
	}
	// Existing rows of another length make the ALTER fail, which is the
	// dimension conflict surfacing at schema time.
	alter := fmt.Sprintf(`ALTER TABLE embeddings ALTER COLUMN embedding TYPE vector(%d)`, meta.Dim)
	if _, err := tx.ExecContext(ctx, alter); err != nil {
		return fmt.Errorf("%w: %w: %w", database.ErrSchema, database.ErrDimensionMismatch, err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_embeddings_hnsw ON embeddings USING hnsw (embedding vector_cosine_ops)`); err != nil {
		return fmt.Errorf("%w: create vector index: %w", database.ErrSchema, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit store meta: %w", database.ErrSchema, err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readMeta(ctx context.Context, q querier) (database.StoreMeta, bool, error) {
	var meta database.StoreMeta
	err := q.QueryRowContext(ctx, `SELECT dim, encoder FROM store_meta WHERE id = 1`).Scan(&meta.Dim, &meta.Encoder)
	if errors.Is(err, sql.ErrNoRows) {
		return meta, false, nil
	}
	if err != nil {
		return meta, false, fmt.Errorf("read store meta: %w", err)
	}
	return meta, true, nil
}

// Insert appends one record in a single transaction.
func (s *Store) Insert(ctx context.Context, label string, embedding []float32) (int64, error) {
	if len(embedding) == 0 {
		return 0, database.ErrEmptyVector
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.pool.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", database.ErrWrite, err)
	}
	defer tx.Rollback()

	meta, _, err := readMeta(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", database.ErrWrite, err)
	}
	if err := database.CheckVector(embedding, meta.Dim); err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO embeddings (label, embedding) VALUES ($1, $2) RETURNING id`,
		label, pgvector.NewVector(database.CopyVector(embedding)),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert: %w", database.ErrWrite, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", database.ErrWrite, err)
	}
	return id, nil
}

// ScanAll yields every record from one read-only snapshot.
func (s *Store) ScanAll(ctx context.Context) iter.Seq2[database.EnrollmentRecord, error] {
	return func(yield func(database.EnrollmentRecord, error) bool) {
		tx, err := s.pool.BeginSnapshot(ctx)
		if err != nil {
			yield(database.EnrollmentRecord{}, err)
			return
		}
		defer tx.Rollback()

		rows, err := tx.QueryContext(ctx, `SELECT id, label, embedding, created_at FROM embeddings`)
		if err != nil {
			yield(database.EnrollmentRecord{}, fmt.Errorf("%w: scan: %w", database.ErrStorageUnavailable, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				yield(database.EnrollmentRecord{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(database.EnrollmentRecord{}, fmt.Errorf("iterate records: %w", err))
		}
	}
}

func scanRecord(rows *sql.Rows) (database.EnrollmentRecord, error) {
	var (
		rec database.EnrollmentRecord
		vec pgvector.Vector
	)
	if err := rows.Scan(&rec.ID, &rec.Label, &vec, &rec.CreatedAt); err != nil {
		return rec, fmt.Errorf("scan record: %w", err)
	}
	rec.Embedding = vec.Slice()
	return rec, nil
}

// NearestCandidates returns the k records closest to query by cosine
// distance using the pgvector HNSW index, sorted by record id.
func (s *Store) NearestCandidates(ctx context.Context, query []float32, k int) ([]database.EnrollmentRecord, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	tx, err := s.pool.BeginSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", max(hnswEfSearch, k))); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, label, embedding, created_at
		FROM embeddings
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("query nearest candidates: %w", err)
	}
	defer rows.Close()

	var out []database.EnrollmentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest candidates: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Labels returns distinct labels with sample counts, sorted by label.
func (s *Store) Labels(ctx context.Context) ([]database.LabelCount, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `SELECT label, COUNT(*) FROM embeddings GROUP BY label ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	var labels []database.LabelCount
	for rows.Next() {
		var lc database.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Samples); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return labels, nil
}

// Info summarizes the store.
func (s *Store) Info(ctx context.Context) (database.StoreInfo, error) {
	info := database.StoreInfo{Backend: "postgres"}
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(id), 0), COUNT(DISTINCT label) FROM embeddings`,
	).Scan(&info.Count, &info.MaxID, &info.Labels)
	if err != nil {
		return info, fmt.Errorf("query store info: %w", err)
	}

	meta, _, err := readMeta(ctx, s.pool.DB())
	if err != nil {
		return info, err
	}
	info.Meta = meta
	return info, nil
}

// RecordVerification stores one verification decision.
func (s *Store) RecordVerification(ctx context.Context, v database.Verification) (string, error) {
	id := uuid.New()
	if v.ID != "" {
		parsed, err := uuid.Parse(v.ID)
		if err != nil {
			return "", fmt.Errorf("%w: invalid verification id: %w", database.ErrWrite, err)
		}
		id = parsed
	}

	query := `INSERT INTO verifications (id, label, score, threshold, matched, challenge) VALUES ($1, $2, $3, $4, $5, $6)`
	args := []any{id, v.Label, v.Score, v.Threshold, v.Matched, v.Challenge}
	if !v.CreatedAt.IsZero() {
		query = `INSERT INTO verifications (id, label, score, threshold, matched, challenge, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
		args = append(args, v.CreatedAt)
	}

	if _, err := s.pool.DB().ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("%w: record verification: %w", database.ErrWrite, err)
	}
	return id.String(), nil
}

// RecentVerifications returns the newest decisions first.
func (s *Store) RecentVerifications(ctx context.Context, limit int) ([]database.Verification, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `
		SELECT id, label, score, threshold, matched, challenge, created_at
		FROM verifications
		ORDER BY created_at DESC
		LIMIT $1
	`, database.ClampVerificationLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query verifications: %w", err)
	}
	defer rows.Close()

	var out []database.Verification
	for rows.Next() {
		var (
			v  database.Verification
			id uuid.UUID
		)
		if err := rows.Scan(&id, &v.Label, &v.Score, &v.Threshold, &v.Matched, &v.Challenge, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		v.ID = id.String()
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}
	return out, nil
}

var _ database.Store = (*Store)(nil)
