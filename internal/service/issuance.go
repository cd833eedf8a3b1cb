// Package service contains application services driving the issuance and
// coupling flows against the stores and the crypto provider.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/greenwallet/internal/crypto"
	"github.com/and161185/greenwallet/internal/errs"
	"github.com/and161185/greenwallet/internal/metrics"
	"github.com/and161185/greenwallet/internal/model"
	"github.com/and161185/greenwallet/internal/repository"
	"github.com/and161185/greenwallet/internal/transport"
)

// Phase tags the issuance step that produced a terminal failure.
type Phase string

const (
	PhaseSecretKey    Phase = "secretKey"
	PhasePrepareIssue Phase = "prepareIssue"
	PhaseCommitment   Phase = "commitment"
	PhaseCredentials  Phase = "credentials"
	PhaseStore        Phase = "store"
)

// IssuanceError is a terminal issuance failure tagged with its phase.
// The wrapped error is either a sentinel from errs or a *transport.ServerError,
// never a generic substitute.
type IssuanceError struct {
	Phase Phase
	Err   error
}

func (e *IssuanceError) Error() string { return fmt.Sprintf("%s: %v", e.Phase, e.Err) }

func (e *IssuanceError) Unwrap() error { return e.Err }

// ResponseEvaluator lets a caller reject an otherwise successful credentials
// response before it is stored.
type ResponseEvaluator interface {
	Evaluate(response *transport.GreenCardResponse) bool
}

// EvaluatorFunc adapts a plain function to ResponseEvaluator.
type EvaluatorFunc func(response *transport.GreenCardResponse) bool

// Evaluate implements ResponseEvaluator.
func (f EvaluatorFunc) Evaluate(response *transport.GreenCardResponse) bool { return f(response) }

// Issuer drives the five-phase issuance protocol: key generation, prepare,
// commitment, credential fetch and storage. One attempt at a time; a second
// concurrent call fails fast instead of racing a key generation.
type Issuer struct {
	network transport.Client
	crypto  crypto.Provider
	events  repository.EventStore
	wallet  repository.WalletStore
	secrets repository.SecretStore
	metrics *metrics.Metrics
	log     *zap.Logger

	mu       sync.Mutex
	inFlight bool
}

// NewIssuer constructs an issuance orchestrator.
func NewIssuer(
	network transport.Client,
	provider crypto.Provider,
	events repository.EventStore,
	wallet repository.WalletStore,
	secrets repository.SecretStore,
	m *metrics.Metrics,
	log *zap.Logger,
) *Issuer {
	return &Issuer{
		network: network,
		crypto:  provider,
		events:  events,
		wallet:  wallet,
		secrets: secrets,
		metrics: m,
		log:     log,
	}
}

// SignTheEventsIntoGreenCardsAndCredentials runs one issuance attempt and
// returns the raw response on success. Every failure is terminal to the
// attempt and surfaced verbatim as an *IssuanceError; nothing is retried here.
func (iss *Issuer) SignTheEventsIntoGreenCardsAndCredentials(
	ctx context.Context, eventMode *model.EventType, evaluator ResponseEvaluator,
) (*transport.GreenCardResponse, error) {
	iss.mu.Lock()
	if iss.inFlight {
		iss.mu.Unlock()
		return nil, errs.ErrIssuanceInFlight
	}
	iss.inFlight = true
	iss.mu.Unlock()
	defer func() {
		iss.mu.Lock()
		iss.inFlight = false
		iss.mu.Unlock()
	}()

	iss.metrics.IncIssuanceAttempt()

	// Phase 1: key generation. No network call has been made yet.
	secretKey, err := iss.crypto.GenerateSecretKey()
	if err != nil || len(secretKey) == 0 {
		iss.log.Error("cannot create new secret key", zap.Error(err))
		return nil, iss.fail(PhaseSecretKey, errs.ErrSecretKey)
	}

	// Phase 2: prepare.
	envelope, err := iss.network.PrepareIssue(ctx)
	if err != nil {
		return nil, iss.fail(PhasePrepareIssue, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(envelope.PrepareIssueMessage)
	if err != nil || len(nonce) == 0 {
		return nil, iss.fail(PhasePrepareIssue, errs.ErrParsePrepareIssue)
	}

	// Phase 3: commitment over the stored signed events.
	signedEvents, err := iss.events.FetchSignedEvents(ctx)
	if err != nil {
		return nil, iss.fail(PhaseCommitment, err)
	}
	if len(signedEvents) == 0 {
		return nil, iss.fail(PhaseCommitment, errs.ErrNoSignedEvents)
	}
	commitment, err := iss.crypto.GenerateCommitmentMessage(nonce, secretKey)
	if err != nil || commitment == "" {
		iss.log.Error("cannot generate commitment message", zap.Error(err))
		return nil, iss.fail(PhaseCommitment, errs.ErrCommitment)
	}

	// Phase 4: fetch credentials.
	flows := []string{}
	if eventMode != nil {
		flows = eventMode.AsFlows()
	}
	response, err := iss.network.FetchCredentials(ctx, &transport.CredentialsRequest{
		Events:                 signedEvents,
		IssueCommitmentMessage: base64.StdEncoding.EncodeToString([]byte(commitment)),
		Flows:                  flows,
		SToken:                 envelope.SToken,
	})
	if err != nil {
		return nil, iss.fail(PhaseCredentials, err)
	}
	if evaluator != nil && !evaluator.Evaluate(response) {
		return nil, iss.fail(PhaseCredentials, errs.ErrDidNotEvaluate)
	}

	// Phase 5: store.
	if err := iss.storeGreenCards(ctx, secretKey, response); err != nil {
		iss.log.Error("failed to save green cards", zap.Error(err))
		if !errors.Is(err, errs.ErrSaveGreenCards) {
			err = fmt.Errorf("%w: %w", errs.ErrSaveGreenCards, err)
		}
		return nil, iss.fail(PhaseStore, err)
	}
	return response, nil
}

// storeGreenCards replaces the whole wallet content with the response.
// Cards persisted before a failing one stay in place: the replace-all step
// has already committed and revoked credentials must not reappear.
func (iss *Issuer) storeGreenCards(ctx context.Context, secretKey []byte, response *transport.GreenCardResponse) error {
	if _, err := iss.wallet.RemoveAllGreenCards(ctx); err != nil {
		return err
	}

	allOK := true
	if response.DomesticGreenCard != nil {
		ok, err := iss.wallet.StoreDomesticGreenCard(ctx, response.DomesticGreenCard, iss.crypto)
		if err != nil {
			return err
		}
		allOK = allOK && ok
		iss.metrics.IncGreenCardStored(string(model.GreenCardTypeDomestic))
	}
	for i := range response.EuGreenCards {
		ok, err := iss.wallet.StoreEuGreenCard(ctx, &response.EuGreenCards[i], iss.crypto)
		if err != nil {
			return err
		}
		allOK = allOK && ok
		iss.metrics.IncGreenCardStored(string(model.GreenCardTypeEU))
	}

	// The secret key follows the domestic card: kept while one exists,
	// cleared when the response contained none.
	if response.DomesticGreenCard != nil {
		if err := iss.secrets.Set(ctx, secretKey); err != nil {
			return err
		}
	} else {
		if err := iss.secrets.Clear(ctx); err != nil {
			return err
		}
	}

	for _, expiry := range response.BlobExpireDates {
		if err := iss.events.UpdateEventGroupExpiry(ctx, expiry.Identifier, expiry.ExpirationDate); err != nil {
			return err
		}
	}
	if err := iss.events.PromoteDraftEventGroups(ctx); err != nil {
		return err
	}

	if !allOK {
		return errs.ErrSaveGreenCards
	}
	return nil
}

func (iss *Issuer) fail(phase Phase, err error) error {
	iss.metrics.IncIssuanceFailure(string(phase))
	return &IssuanceError{Phase: phase, Err: err}
}
