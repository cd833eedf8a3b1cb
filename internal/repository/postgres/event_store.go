package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/greenwallet/internal/model"
)

// EventStore implements repository.EventStore using PostgreSQL.
type EventStore struct{ db *DB }

// NewEventStore constructs an event group store.
func NewEventStore(db *DB) *EventStore { return &EventStore{db: db} }

// StoreEventGroup persists one signed blob. A final group replaces any prior
// final group with the same (type, provider) pair; drafts never replace.
func (s *EventStore) StoreEventGroup(
	ctx context.Context, typ model.EventType, providerIdentifier string,
	payload []byte, expiryDate *time.Time, isDraft bool,
) (group *model.EventGroup, err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
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
		return nil, err
	}

	if !isDraft {
		const del = `
DELETE FROM event_groups
WHERE wallet_id=$1 AND type=$2 AND lower(provider_identifier)=lower($3) AND NOT is_draft`
		if _, err = tx.Exec(ctx, del, walletID, string(typ), providerIdentifier); err != nil {
			return nil, err
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	const ins = `
INSERT INTO event_groups (id, wallet_id, type, provider_identifier, payload, expiry_date, is_draft)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING created_at`
	var createdAt time.Time
	if err = tx.QueryRow(ctx, ins, id, walletID, string(typ), providerIdentifier, payload, expiryDate, isDraft).Scan(&createdAt); err != nil {
		return nil, err
	}

	return &model.EventGroup{
		ID:                 id,
		WalletID:           walletID,
		Type:               typ,
		ProviderIdentifier: providerIdentifier,
		Payload:            payload,
		ExpiryDate:         expiryDate,
		IsDraft:            isDraft,
		CreatedAt:          createdAt,
	}, nil
}

// RemoveEventGroups deletes groups matching the optional filters.
func (s *EventStore) RemoveEventGroups(ctx context.Context, typ *model.EventType, providerIdentifier *string) (int64, error) {
	sql := `DELETE FROM event_groups WHERE wallet_id=` + walletIDByLabel
	args := []any{model.WalletLabel}
	if typ != nil {
		args = append(args, string(*typ))
		sql += fmt.Sprintf(" AND type=$%d", len(args))
	}
	if providerIdentifier != nil {
		args = append(args, *providerIdentifier)
		sql += fmt.Sprintf(" AND lower(provider_identifier)=lower($%d)", len(args))
	}
	ct, err := s.db.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// RemoveDraftEventGroups purges every draft group.
func (s *EventStore) RemoveDraftEventGroups(ctx context.Context) error {
	sql := `DELETE FROM event_groups WHERE wallet_id=` + walletIDByLabel + ` AND is_draft`
	_, err := s.db.Pool.Exec(ctx, sql, model.WalletLabel)
	return err
}

// PromoteDraftEventGroups marks drafts final, replacing any final group a
// draft supersedes so the (type, provider) uniqueness holds.
func (s *EventStore) PromoteDraftEventGroups(ctx context.Context) (err error) {
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

	const del = `
DELETE FROM event_groups f
WHERE NOT f.is_draft AND EXISTS (
    SELECT 1 FROM event_groups d
    WHERE d.is_draft AND d.wallet_id=f.wallet_id AND d.type=f.type
      AND lower(d.provider_identifier)=lower(f.provider_identifier))`
	if _, err = tx.Exec(ctx, del); err != nil {
		return err
	}
	const upd = `UPDATE event_groups SET is_draft=false WHERE is_draft`
	if _, err = tx.Exec(ctx, upd); err != nil {
		return err
	}
	return nil
}

// ListEventGroups returns all stored groups, oldest first.
func (s *EventStore) ListEventGroups(ctx context.Context) ([]model.EventGroup, error) {
	sql := `
SELECT id, wallet_id, type, provider_identifier, payload, expiry_date, is_draft, created_at
FROM event_groups
WHERE wallet_id=` + walletIDByLabel + `
ORDER BY created_at ASC`
	rows, err := s.db.Pool.Query(ctx, sql, model.WalletLabel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EventGroup
	for rows.Next() {
		var g model.EventGroup
		var typ string
		if err = rows.Scan(&g.ID, &g.WalletID, &typ, &g.ProviderIdentifier, &g.Payload, &g.ExpiryDate, &g.IsDraft, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.Type = model.EventType(typ)
		out = append(out, g)
	}
	return out, rows.Err()
}

// FetchSignedEvents extracts the inner signed-payload field from each stored
// blob. Blobs that do not parse as signed payloads are skipped.
func (s *EventStore) FetchSignedEvents(ctx context.Context) ([]string, error) {
	groups, err := s.ListEventGroups(ctx)
	if err != nil {
		return nil, err
	}
	signedEvents := make([]string, 0, len(groups))
	for _, g := range groups {
		if payload, ok := signedPayloadOf(g.Payload); ok {
			signedEvents = append(signedEvents, payload)
		}
	}
	return signedEvents, nil
}

// ExpireEventGroups removes groups expired as of forDate. Groups without an
// expiry hint are never swept.
func (s *EventStore) ExpireEventGroups(ctx context.Context, forDate time.Time) (int64, error) {
	sql := `
DELETE FROM event_groups
WHERE wallet_id=` + walletIDByLabel + ` AND expiry_date IS NOT NULL AND expiry_date < $2`
	ct, err := s.db.Pool.Exec(ctx, sql, model.WalletLabel, forDate)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// UpdateEventGroupExpiry refreshes the expiry hint of one group.
// An unknown or malformed identifier is a no-op.
func (s *EventStore) UpdateEventGroupExpiry(ctx context.Context, identifier string, expiryDate time.Time) error {
	id, err := uuid.FromString(identifier)
	if err != nil {
		return nil
	}
	const sql = `UPDATE event_groups SET expiry_date=$2 WHERE id=$1`
	_, err = s.db.Pool.Exec(ctx, sql, id, expiryDate)
	return err
}

// RemoveEventGroup deletes one group by identifier; unknown identifiers are a no-op.
func (s *EventStore) RemoveEventGroup(ctx context.Context, identifier string) error {
	id, err := uuid.FromString(identifier)
	if err != nil {
		return nil
	}
	const sql = `DELETE FROM event_groups WHERE id=$1`
	_, err = s.db.Pool.Exec(ctx, sql, id)
	return err
}

// signedPayloadOf returns the inner payload field of a signed blob.
// The full wrapper decode doubles as validation of the inner payload.
func signedPayloadOf(blob []byte) (string, bool) {
	if _, ok := model.DecodeEventGroupWrapper(blob); !ok {
		return "", false
	}
	var signed model.SignedEventPayload
	if err := json.Unmarshal(blob, &signed); err != nil {
		return "", false
	}
	return signed.Payload, true
}
