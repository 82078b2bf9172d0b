// Package sqlite is the default, single-file store backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-engine/internal/database"
	_ "modernc.org/sqlite"
)

// Scheme is the optional DATABASE_URL prefix selecting this backend.
const Scheme = "sqlite://"

// Store keeps enrollment records in a SQLite database file.
// Writers are serialized by writeMu; reads run in their own read-only
// transactions and never block on writers (WAL mode).
type Store struct {
	db      *sql.DB
	path    string
	writeMu sync.Mutex
}

// dsn builds the driver connection string for path.
func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

// Open opens (creating if absent) the database at location, a file path
// optionally prefixed with sqlite://.
func Open(location string) (*Store, error) {
	path := strings.TrimPrefix(location, Scheme)
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", database.ErrStorageUnavailable)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", database.ErrStorageUnavailable, path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: open %s: %w", database.ErrStorageUnavailable, path, err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// InitializeSchema applies pending migrations and records or verifies meta.
func (s *Store) InitializeSchema(ctx context.Context, meta database.StoreMeta) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", database.ErrSchema, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", database.ErrSchema, err)
	}
	defer tx.Rollback()

	stored, found, err := readMeta(ctx, tx)
	if err != nil {
		return fmt.Errorf("%w: %w", database.ErrSchema, err)
	}

	if !found {
		if meta.Dim <= 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO store_meta (id, dim, encoder) VALUES (1, ?, ?)`, meta.Dim, meta.Encoder); err != nil {
			return fmt.Errorf("%w: write store meta: %w", database.ErrSchema, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit store meta: %w", database.ErrSchema, err)
		}
		return nil
	}

	if err := database.CheckMeta(stored, meta); err != nil {
		return err
	}
	if meta.Encoder != "" && stored.Encoder != meta.Encoder {
		log.Printf("Warning: store %s was created by encoder %q, now using %q", s.path, stored.Encoder, meta.Encoder)
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", database.ErrWrite, err)
	}
	defer tx.Rollback()

	meta, _, err := readMeta(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", database.ErrWrite, err)
	}
	if err := database.CheckVector(embedding, meta.Dim); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO embeddings (label, vec, created_at) VALUES (?, ?, ?)`,
		label, database.EncodeEmbedding(embedding), time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: insert: %w", database.ErrWrite, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: last insert id: %w", database.ErrWrite, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", database.ErrWrite, err)
	}
	return id, nil
}

// ScanAll yields every record from one read-only snapshot.
func (s *Store) ScanAll(ctx context.Context) iter.Seq2[database.EnrollmentRecord, error] {
	return func(yield func(database.EnrollmentRecord, error) bool) {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			yield(database.EnrollmentRecord{}, fmt.Errorf("%w: begin snapshot: %w", database.ErrStorageUnavailable, err))
			return
		}
		defer tx.Rollback()

		rows, err := tx.QueryContext(ctx, `SELECT id, label, vec, created_at FROM embeddings`)
		if err != nil {
			yield(database.EnrollmentRecord{}, fmt.Errorf("%w: scan: %w", database.ErrStorageUnavailable, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rec       database.EnrollmentRecord
				blob      []byte
				createdAt int64
			)
			if err := rows.Scan(&rec.ID, &rec.Label, &blob, &createdAt); err != nil {
				yield(database.EnrollmentRecord{}, fmt.Errorf("scan record: %w", err))
				return
			}
			rec.Embedding, err = database.DecodeEmbedding(blob)
			if err != nil {
				yield(database.EnrollmentRecord{}, fmt.Errorf("record %d: %w", rec.ID, err))
				return
			}
			rec.CreatedAt = time.UnixMilli(createdAt)
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(database.EnrollmentRecord{}, fmt.Errorf("iterate records: %w", err))
		}
	}
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Labels returns distinct labels with sample counts, sorted by label.
func (s *Store) Labels(ctx context.Context) ([]database.LabelCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label, COUNT(*) FROM embeddings GROUP BY label ORDER BY label`)
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
	info := database.StoreInfo{Backend: "sqlite"}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(id), 0), COUNT(DISTINCT label) FROM embeddings`,
	).Scan(&info.Count, &info.MaxID, &info.Labels)
	if err != nil {
		return info, fmt.Errorf("query store info: %w", err)
	}

	meta, _, err := readMeta(ctx, s.db)
	if err != nil {
		return info, err
	}
	info.Meta = meta
	return info, nil
}

// RecordVerification stores one verification decision.
func (s *Store) RecordVerification(ctx context.Context, v database.Verification) (string, error) {
	if v.ID == "" {
		v.ID = database.NewVerificationID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verifications (id, label, score, threshold, matched, challenge, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Label, v.Score, v.Threshold, v.Matched, v.Challenge, v.CreatedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("%w: record verification: %w", database.ErrWrite, err)
	}
	return v.ID, nil
}

// RecentVerifications returns the newest decisions first.
func (s *Store) RecentVerifications(ctx context.Context, limit int) ([]database.Verification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, score, threshold, matched, challenge, created_at FROM verifications ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		database.ClampVerificationLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query verifications: %w", err)
	}
	defer rows.Close()

	var out []database.Verification
	for rows.Next() {
		var (
			v         database.Verification
			createdAt int64
		)
		if err := rows.Scan(&v.ID, &v.Label, &v.Score, &v.Threshold, &v.Matched, &v.Challenge, &createdAt); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		v.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}
	return out, nil
}

var _ database.Store = (*Store)(nil)
