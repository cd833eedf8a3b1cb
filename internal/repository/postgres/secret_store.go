package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/greenwallet/internal/errs"
	"github.com/and161185/greenwallet/internal/model"
)

// SecretStore keeps the holder's domestic secret key in a single-row table,
// the server-side stand-in for the device keychain.
type SecretStore struct{ db *DB }

// NewSecretStore constructs a secret key store.
func NewSecretStore(db *DB) *SecretStore { return &SecretStore{db: db} }

// Get returns the stored secret key or errs.ErrNotFound.
func (s *SecretStore) Get(ctx context.Context) ([]byte, error) {
	sql := `SELECT secret_key FROM holder_secrets WHERE wallet_id=` + walletIDByLabel
	var key []byte
	if err := s.db.Pool.QueryRow(ctx, sql, model.WalletLabel).Scan(&key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return key, nil
}

// Set stores or replaces the secret key.
func (s *SecretStore) Set(ctx context.Context, key []byte) (err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	walletID, err := ensureWallet(ctx, tx)
	if err != nil {
		return err
	}
	const ins = `
INSERT INTO holder_secrets (wallet_id, secret_key) VALUES ($1,$2)
ON CONFLICT (wallet_id) DO UPDATE SET secret_key=EXCLUDED.secret_key, updated_at=now()`
	_, err = tx.Exec(ctx, ins, walletID, key)
	return err
}

// Clear removes the secret key; clearing an absent key is a no-op.
func (s *SecretStore) Clear(ctx context.Context) error {
	sql := `DELETE FROM holder_secrets WHERE wallet_id=` + walletIDByLabel
	_, err := s.db.Pool.Exec(ctx, sql, model.WalletLabel)
	return err
}
