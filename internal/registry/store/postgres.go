package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"landchain/internal/registry/models"
	"landchain/pkg/platform/sentinel"
)

// isUniqueViolation reports whether err is a postgres unique-constraint
// violation (SQLSTATE 23505). Duplicate ids and token ids must surface as
// ErrConflict so callers can retry, matching the memory store.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// PostgresStore persists requests and parcels in PostgreSQL. Records are stored
// as JSONB payloads next to the columns the store needs to query on; the
// version column backs the compare-and-swap that Update performs.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against the given DSN.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing pool; used by integration tests.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the schema if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS requests (
			id TEXT PRIMARY KEY,
			wallet_address TEXT NOT NULL,
			request_type TEXT NOT NULL,
			status TEXT NOT NULL,
			payload JSONB NOT NULL,
			version BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS parcels (
			id TEXT PRIMARY KEY,
			token_id BIGINT NOT NULL UNIQUE,
			owner_wallet TEXT NOT NULL,
			status TEXT NOT NULL,
			payload JSONB NOT NULL,
			version BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_wallet ON requests (wallet_address)`,
		`CREATE INDEX IF NOT EXISTS idx_parcels_owner ON parcels (owner_wallet)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate registry schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Requests returns the RequestStore view.
func (s *PostgresStore) Requests() RequestStore { return &postgresRequests{db: s.db} }

// Parcels returns the ParcelStore view.
func (s *PostgresStore) Parcels() ParcelStore { return &postgresParcels{db: s.db} }

type postgresRequests struct {
	db *sql.DB
}

func (s *postgresRequests) Create(ctx context.Context, req *models.Request) error {
	req.Version = 1
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO requests (id, wallet_address, request_type, status, payload, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.WalletAddress, string(req.Type), string(req.Status),
		payload, req.Version, req.CreatedAt, req.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *postgresRequests) FindByID(ctx context.Context, id string) (*models.Request, error) {
	var payload []byte
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, version FROM requests WHERE id = $1`, id,
	).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find request: %w", err)
	}
	var req models.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("unmarshal request %s: %w", id, err)
	}
	req.Version = version
	return &req, nil
}

func (s *postgresRequests) Update(ctx context.Context, req *models.Request) error {
	next := req.Version + 1
	stamped := req.Clone()
	stamped.Version = next
	payload, err := json.Marshal(stamped)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET status = $1, payload = $2, version = $3, updated_at = $4
		WHERE id = $5 AND version = $6`,
		string(req.Status), payload, next, time.Now(), req.ID, req.Version,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request rows: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or another writer won the version race.
		if _, ferr := s.FindByID(ctx, req.ID); errors.Is(ferr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	req.Version = next
	return nil
}

type postgresParcels struct {
	db *sql.DB
}

func (s *postgresParcels) Create(ctx context.Context, parcel *models.Parcel) error {
	parcel.Version = 1
	payload, err := json.Marshal(parcel)
	if err != nil {
		return fmt.Errorf("marshal parcel: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parcels (id, token_id, owner_wallet, status, payload, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		parcel.ID, parcel.TokenID, parcel.OwnerWallet, string(parcel.Status),
		payload, parcel.Version, parcel.CreatedAt, parcel.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert parcel: %w", err)
	}
	return nil
}

func (s *postgresParcels) FindByIDOrTokenID(ctx context.Context, idOrTokenID string) (*models.Parcel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, version FROM parcels WHERE id = $1`, idOrTokenID)
	parcel, err := scanParcel(row)
	if err == nil {
		return parcel, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}
	tokenID, perr := strconv.ParseUint(idOrTokenID, 10, 64)
	if perr != nil {
		return nil, sentinel.ErrNotFound
	}
	row = s.db.QueryRowContext(ctx,
		`SELECT payload, version FROM parcels WHERE token_id = $1`, tokenID)
	return scanParcel(row)
}

func scanParcel(row *sql.Row) (*models.Parcel, error) {
	var payload []byte
	var version int64
	err := row.Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find parcel: %w", err)
	}
	var parcel models.Parcel
	if err := json.Unmarshal(payload, &parcel); err != nil {
		return nil, fmt.Errorf("unmarshal parcel: %w", err)
	}
	parcel.Version = version
	return &parcel, nil
}

func (s *postgresParcels) Update(ctx context.Context, parcel *models.Parcel) error {
	next := parcel.Version + 1
	stamped := parcel.Clone()
	stamped.Version = next
	payload, err := json.Marshal(stamped)
	if err != nil {
		return fmt.Errorf("marshal parcel: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE parcels
		SET owner_wallet = $1, status = $2, payload = $3, version = $4, updated_at = $5
		WHERE id = $6 AND version = $7`,
		parcel.OwnerWallet, string(parcel.Status), payload, next, time.Now(),
		parcel.ID, parcel.Version,
	)
	if err != nil {
		return fmt.Errorf("update parcel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update parcel rows: %w", err)
	}
	if affected == 0 {
		if _, ferr := s.FindByIDOrTokenID(ctx, parcel.ID); errors.Is(ferr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	parcel.Version = next
	return nil
}

func (s *postgresParcels) Count(ctx context.Context) (uint64, error) {
	var count uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parcels`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count parcels: %w", err)
	}
	return count, nil
}
