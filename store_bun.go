package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// single-row table; the store is a one-slot record, not a user database
const credentialRowID = 1

type credentialRow struct {
	bun.BaseModel `bun:"table:credentials,alias:cred"`
	ID            int64     `bun:"id,pk"`
	Token         string    `bun:"token,notnull"`
	IsAdmin       bool      `bun:"is_admin,notnull,default:false"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

var _ CredentialStore = &BunStore{}

// BunStore persists the credential record in an embedded sqlite database,
// for kiosk/POS frontends that already ship one.
type BunStore struct {
	db *bun.DB
}

// NewBunStore wraps an existing bun.DB, creating the credentials table when
// missing.
func NewBunStore(db *bun.DB) (*BunStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.NewCreateTable().
		Model((*credentialRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create credentials table")
	}

	return &BunStore{db: db}, nil
}

// OpenBunStore opens (or creates) a sqlite database at dsn and returns a
// store backed by it.
func OpenBunStore(dsn string) (*BunStore, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open credential database")
	}
	return NewBunStore(bun.NewDB(sqldb, sqlitedialect.New()))
}

// Close releases the underlying database.
func (s *BunStore) Close() error {
	return s.db.Close()
}

func (s *BunStore) Load() (CredentialRecord, bool, error) {
	ctx, cancel := s.opCtx()
	defer cancel()

	row := new(credentialRow)
	err := s.db.NewSelect().
		Model(row).
		Where("cred.id = ?", credentialRowID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CredentialRecord{}, false, nil
		}
		return CredentialRecord{}, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load credential record")
	}

	rec := CredentialRecord{Token: row.Token, IsAdmin: row.IsAdmin}
	return rec, rec.Token != "", nil
}

func (s *BunStore) Save(rec CredentialRecord) error {
	ctx, cancel := s.opCtx()
	defer cancel()

	row := &credentialRow{
		ID:        credentialRowID,
		Token:     rec.Token,
		IsAdmin:   rec.IsAdmin,
		UpdatedAt: time.Now(),
	}

	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("is_admin = EXCLUDED.is_admin").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save credential record")
	}

	return nil
}

func (s *BunStore) Clear() error {
	ctx, cancel := s.opCtx()
	defer cancel()

	if _, err := s.db.NewDelete().
		Model((*credentialRow)(nil)).
		Where("id = ?", credentialRowID).
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear credential record")
	}

	return nil
}

func (s *BunStore) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
