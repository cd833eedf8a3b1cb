package postgres

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/greenwallet/internal/crypto"
	"github.com/and161185/greenwallet/internal/errs"
	"github.com/and161185/greenwallet/internal/model"
	"github.com/and161185/greenwallet/internal/transport"
)

// WalletStore implements repository.WalletStore using PostgreSQL.
type WalletStore struct{ db *DB }

// NewWalletStore constructs a green card store.
func NewWalletStore(db *DB) *WalletStore { return &WalletStore{db: db} }

// EnsureWallet lazily creates the singleton wallet.
func (s *WalletStore) EnsureWallet(ctx context.Context) (*model.Wallet, error) {
	id, err := ensureWallet(ctx, s.db.Pool)
	if err != nil {
		return nil, err
	}
	return &model.Wallet{ID: id, Label: model.WalletLabel}, nil
}

// StoreDomesticGreenCard persists a domestic card with its origins, creating
// one credential per attribute set. When every attribute set fails the card is
// committed present-but-empty and ok is false: the replace-all step has
// already revoked the old cards and must not be undone.
func (s *WalletStore) StoreDomesticGreenCard(
	ctx context.Context, dto *transport.DomesticGreenCard, provider crypto.Provider,
) (ok bool, err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
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

	cardID, originsOK, err := s.insertCard(ctx, tx, model.GreenCardTypeDomestic, dto.Origins)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	expiration := latestExpiration(dto.Origins, now)
	created := 0
	for _, message := range dto.CreateCredentialMessages {
		attributeSet, decErr := base64.StdEncoding.DecodeString(message)
		if decErr != nil {
			continue
		}
		data, credErr := provider.CreateCredential(attributeSet)
		if credErr != nil {
			continue
		}
		if err = s.insertCredential(ctx, tx, cardID, data, now, expiration, 1); err != nil {
			return false, err
		}
		created++
	}

	ok = originsOK && (created > 0 || len(dto.CreateCredentialMessages) == 0)
	return ok, nil
}

// StoreEuGreenCard persists an EU card. The single credential is valid from
// epoch: it originates from an already verified certificate.
func (s *WalletStore) StoreEuGreenCard(
	ctx context.Context, dto *transport.EuGreenCard, provider crypto.Provider,
) (ok bool, err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
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

	cardID, originsOK, err := s.insertCard(ctx, tx, model.GreenCardTypeEU, dto.Origins)
	if err != nil {
		return false, err
	}

	ok = originsOK
	data := []byte(dto.Credential)
	attributes, readErr := provider.ReadEuCredentials(data)
	if readErr != nil {
		return false, nil
	}
	expiration := time.Unix(attributes.ExpirationTime, 0).UTC()
	if err = s.insertCredential(ctx, tx, cardID, data, time.Unix(0, 0).UTC(), expiration, attributes.CredentialVersion); err != nil {
		return false, err
	}
	return ok, nil
}

// insertCard creates a green card row plus its origins. Origins with an
// unknown type are skipped and reported through ok=false.
func (s *WalletStore) insertCard(
	ctx context.Context, tx pgx.Tx, typ model.GreenCardType, origins []transport.RemoteOrigin,
) (cardID uuid.UUID, ok bool, err error) {
	walletID, err := ensureWallet(ctx, tx)
	if err != nil {
		return uuid.Nil, false, err
	}
	cardID, err = uuid.NewV4()
	if err != nil {
		return uuid.Nil, false, err
	}
	const insCard = `INSERT INTO green_cards (id, wallet_id, type) VALUES ($1,$2,$3)`
	if _, err = tx.Exec(ctx, insCard, cardID, walletID, string(typ)); err != nil {
		return uuid.Nil, false, err
	}

	ok = true
	const insOrigin = `
INSERT INTO origins (id, green_card_id, type, event_date, valid_from, expiration_time, dose_number, hints)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	for _, remote := range origins {
		originType, known := originTypeFrom(remote.Type)
		if !known {
			ok = false
			continue
		}
		var originID uuid.UUID
		originID, err = uuid.NewV4()
		if err != nil {
			return uuid.Nil, false, err
		}
		hints := remote.Hints
		if hints == nil {
			hints = []string{}
		}
		if _, err = tx.Exec(ctx, insOrigin, originID, cardID, string(originType),
			remote.EventTime, remote.ValidFrom, remote.ExpirationTime, remote.DoseNumber, hints); err != nil {
			return uuid.Nil, false, err
		}
	}
	return cardID, ok, nil
}

func (s *WalletStore) insertCredential(
	ctx context.Context, tx pgx.Tx, cardID uuid.UUID,
	data []byte, validFrom, expiration time.Time, version int,
) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	const ins = `
INSERT INTO credentials (id, green_card_id, data, valid_from, expiration_time, version)
VALUES ($1,$2,$3,$4,$5,$6)`
	_, err = tx.Exec(ctx, ins, id, cardID, data, validFrom, expiration, version)
	return err
}

// RemoveAllGreenCards deletes every green card of any type; origins and
// credentials go with them via cascade.
func (s *WalletStore) RemoveAllGreenCards(ctx context.Context) (int64, error) {
	sql := `DELETE FROM green_cards WHERE wallet_id=` + walletIDByLabel
	ct, err := s.db.Pool.Exec(ctx, sql, model.WalletLabel)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// RemoveExpiredGreenCards deletes cards with no origin valid past forDate and
// reports one tuple per deleted card. Cards without any origin are removed
// silently; a card with zero origins is meaningless.
func (s *WalletStore) RemoveExpiredGreenCards(ctx context.Context, forDate time.Time) (expired []model.ExpiredGreenCard, err error) {
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

	sql := `
SELECT gc.id, gc.type, o.type, o.expiration_time
FROM green_cards gc
LEFT JOIN origins o ON o.green_card_id = gc.id
WHERE gc.wallet_id=` + walletIDByLabel + `
ORDER BY gc.id`
	rows, err := tx.Query(ctx, sql, model.WalletLabel)
	if err != nil {
		return nil, err
	}

	type cardState struct {
		cardType       model.GreenCardType
		hasValid       bool
		lastOriginType model.OriginType
		lastExpiry     time.Time
	}
	order := make([]uuid.UUID, 0)
	cards := make(map[uuid.UUID]*cardState)
	for rows.Next() {
		var (
			id         uuid.UUID
			cardType   string
			originType *string
			expiry     *time.Time
		)
		if err = rows.Scan(&id, &cardType, &originType, &expiry); err != nil {
			rows.Close()
			return nil, err
		}
		state, seen := cards[id]
		if !seen {
			state = &cardState{cardType: model.GreenCardType(cardType)}
			cards[id] = state
			order = append(order, id)
		}
		if originType == nil || expiry == nil {
			continue
		}
		if expiry.After(forDate) {
			state.hasValid = true
		}
		if !expiry.Before(state.lastExpiry) {
			state.lastExpiry = *expiry
			state.lastOriginType = model.OriginType(*originType)
		}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	toDelete := make([]uuid.UUID, 0)
	expired = make([]model.ExpiredGreenCard, 0)
	for _, id := range order {
		state := cards[id]
		if state.hasValid {
			continue
		}
		toDelete = append(toDelete, id)
		if state.lastOriginType != "" {
			expired = append(expired, model.ExpiredGreenCard{
				GreenCardType: state.cardType,
				OriginType:    state.lastOriginType,
			})
		}
	}
	if len(toDelete) > 0 {
		const del = `DELETE FROM green_cards WHERE id = ANY($1)`
		if _, err = tx.Exec(ctx, del, toDelete); err != nil {
			return nil, err
		}
	}
	return expired, nil
}

// ListGreenCards returns all stored green cards.
func (s *WalletStore) ListGreenCards(ctx context.Context) ([]model.GreenCard, error) {
	sql := `SELECT id, wallet_id, type FROM green_cards WHERE wallet_id=` + walletIDByLabel + ` ORDER BY id`
	rows, err := s.db.Pool.Query(ctx, sql, model.WalletLabel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GreenCard
	for rows.Next() {
		var gc model.GreenCard
		var typ string
		if err = rows.Scan(&gc.ID, &gc.WalletID, &typ); err != nil {
			return nil, err
		}
		gc.Type = model.GreenCardType(typ)
		out = append(out, gc)
	}
	return out, rows.Err()
}

// ListOrigins returns the origins of one green card.
func (s *WalletStore) ListOrigins(ctx context.Context, greenCardID string) ([]model.Origin, error) {
	id, err := uuid.FromString(greenCardID)
	if err != nil {
		return nil, errs.ErrNotFound
	}
	const sql = `
SELECT id, green_card_id, type, event_date, valid_from, expiration_time, dose_number, hints
FROM origins WHERE green_card_id=$1 ORDER BY event_date ASC`
	rows, err := s.db.Pool.Query(ctx, sql, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Origin
	for rows.Next() {
		var o model.Origin
		var typ string
		if err = rows.Scan(&o.ID, &o.GreenCardID, &typ, &o.EventDate, &o.ValidFrom, &o.ExpirationTime, &o.DoseNumber, &o.Hints); err != nil {
			return nil, err
		}
		o.Type = model.OriginType(typ)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListCredentials returns the credentials of one green card.
func (s *WalletStore) ListCredentials(ctx context.Context, greenCardID string) ([]model.Credential, error) {
	id, err := uuid.FromString(greenCardID)
	if err != nil {
		return nil, errs.ErrNotFound
	}
	const sql = `
SELECT id, green_card_id, data, valid_from, expiration_time, version
FROM credentials WHERE green_card_id=$1 ORDER BY valid_from ASC`
	rows, err := s.db.Pool.Query(ctx, sql, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Credential
	for rows.Next() {
		var c model.Credential
		if err = rows.Scan(&c.ID, &c.GreenCardID, &c.Data, &c.ValidFrom, &c.ExpirationTime, &c.Version); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GreenCardsWithUnexpiredOrigins returns cards that still have an origin valid
// past now, optionally restricted to one origin type.
func (s *WalletStore) GreenCardsWithUnexpiredOrigins(ctx context.Context, now time.Time, originType *model.OriginType) ([]model.GreenCard, error) {
	sql := `
SELECT DISTINCT gc.id, gc.wallet_id, gc.type
FROM green_cards gc
JOIN origins o ON o.green_card_id = gc.id
WHERE gc.wallet_id=` + walletIDByLabel + ` AND o.expiration_time > $2`
	args := []any{model.WalletLabel, now}
	if originType != nil {
		args = append(args, string(*originType))
		sql += ` AND o.type=$3`
	}
	sql += ` ORDER BY gc.id`
	rows, err := s.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GreenCard
	for rows.Next() {
		var gc model.GreenCard
		var typ string
		if err = rows.Scan(&gc.ID, &gc.WalletID, &typ); err != nil {
			return nil, err
		}
		gc.Type = model.GreenCardType(typ)
		out = append(out, gc)
	}
	return out, rows.Err()
}

// StoreRemovedEvent writes one audit record.
func (s *WalletStore) StoreRemovedEvent(
	ctx context.Context, typ model.EventType, eventDate time.Time,
	reason model.RemovalReason, payload []byte,
) (removed *model.RemovedEvent, err error) {
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
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	const ins = `
INSERT INTO removed_events (id, wallet_id, type, event_date, reason, payload)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING created_at`
	var createdAt time.Time
	if err = tx.QueryRow(ctx, ins, id, walletID, string(typ), eventDate, string(reason), payload).Scan(&createdAt); err != nil {
		return nil, err
	}
	return &model.RemovedEvent{
		ID:        id,
		WalletID:  walletID,
		Type:      typ,
		EventDate: eventDate,
		Reason:    reason,
		Payload:   payload,
		CreatedAt: createdAt,
	}, nil
}

// ListRemovedEvents returns all audit records, oldest first.
func (s *WalletStore) ListRemovedEvents(ctx context.Context) ([]model.RemovedEvent, error) {
	sql := `
SELECT id, wallet_id, type, event_date, reason, payload, created_at
FROM removed_events
WHERE wallet_id=` + walletIDByLabel + `
ORDER BY created_at ASC`
	rows, err := s.db.Pool.Query(ctx, sql, model.WalletLabel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RemovedEvent
	for rows.Next() {
		var e model.RemovedEvent
		var typ, reason string
		if err = rows.Scan(&e.ID, &e.WalletID, &typ, &e.EventDate, &reason, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = model.EventType(typ)
		e.Reason = model.RemovalReason(reason)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RemoveRemovedEvents purges audit records with the given reason.
func (s *WalletStore) RemoveRemovedEvents(ctx context.Context, reason model.RemovalReason) (int64, error) {
	sql := `DELETE FROM removed_events WHERE wallet_id=` + walletIDByLabel + ` AND reason=$2`
	ct, err := s.db.Pool.Exec(ctx, sql, model.WalletLabel, string(reason))
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// latestExpiration returns the latest origin expiration, falling back to now.
func latestExpiration(origins []transport.RemoteOrigin, now time.Time) time.Time {
	latest := now
	for _, o := range origins {
		if o.ExpirationTime.After(latest) {
			latest = o.ExpirationTime
		}
	}
	return latest
}

// originTypeFrom maps a wire origin type onto the domain enum.
func originTypeFrom(raw string) (model.OriginType, bool) {
	switch model.OriginType(raw) {
	case model.OriginTypeVaccination, model.OriginTypeRecovery, model.OriginTypeTest, model.OriginTypeVaccinationAssessment:
		return model.OriginType(raw), true
	}
	return "", false
}
