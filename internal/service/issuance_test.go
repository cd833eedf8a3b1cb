package service

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/greenwallet/internal/crypto"
	"github.com/and161185/greenwallet/internal/errs"
	"github.com/and161185/greenwallet/internal/metrics"
	"github.com/and161185/greenwallet/internal/model"
	"github.com/and161185/greenwallet/internal/repository"
	"github.com/and161185/greenwallet/internal/transport"
)

type fakeClient struct {
	prepareEnvelope *transport.PrepareIssueEnvelope
	prepareErr      error
	prepareCalls    int

	credsReq  *transport.CredentialsRequest
	credsResp *transport.GreenCardResponse
	credsErr  error

	couplingResp *transport.CouplingResponse
	couplingErr  error
	couplingDCC  string
	couplingCode string
}

var _ transport.Client = (*fakeClient)(nil)

func (f *fakeClient) PrepareIssue(_ context.Context) (*transport.PrepareIssueEnvelope, error) {
	f.prepareCalls++
	return f.prepareEnvelope, f.prepareErr
}

func (f *fakeClient) FetchCredentials(_ context.Context, req *transport.CredentialsRequest) (*transport.GreenCardResponse, error) {
	f.credsReq = req
	return f.credsResp, f.credsErr
}

func (f *fakeClient) CheckCouplingStatus(_ context.Context, dcc, couplingCode string) (*transport.CouplingResponse, error) {
	f.couplingDCC, f.couplingCode = dcc, couplingCode
	return f.couplingResp, f.couplingErr
}

type fakeCrypto struct {
	secretKey []byte
	secretErr error

	commitment string
	commitErr  error

	createOut []byte
	createErr error

	readAttrs *crypto.EuCredentialAttributes
	readErr   error
}

var _ crypto.Provider = (*fakeCrypto)(nil)

func (f *fakeCrypto) GenerateSecretKey() ([]byte, error) { return f.secretKey, f.secretErr }
func (f *fakeCrypto) GenerateCommitmentMessage(_, _ []byte) (string, error) {
	return f.commitment, f.commitErr
}
func (f *fakeCrypto) CreateCredential(_ []byte) ([]byte, error) { return f.createOut, f.createErr }
func (f *fakeCrypto) ReadEuCredentials(_ []byte) (*crypto.EuCredentialAttributes, error) {
	return f.readAttrs, f.readErr
}

type fakeEventStore struct {
	groups       []model.EventGroup
	signedEvents []string
	fetchErr     error

	promoteCalls  int
	expiryUpdates map[string]time.Time
	removedIDs    []string
	removeErr     error

	removeAllCalls int
}

var _ repository.EventStore = (*fakeEventStore)(nil)

func (f *fakeEventStore) StoreEventGroup(_ context.Context, typ model.EventType, provider string, payload []byte, expiry *time.Time, isDraft bool) (*model.EventGroup, error) {
	group := model.EventGroup{
		ID:                 uuid.Must(uuid.NewV4()),
		Type:               typ,
		ProviderIdentifier: provider,
		Payload:            payload,
		ExpiryDate:         expiry,
		IsDraft:            isDraft,
		CreatedAt:          time.Now().UTC(),
	}
	f.groups = append(f.groups, group)
	return &group, nil
}

func (f *fakeEventStore) RemoveEventGroups(_ context.Context, typ *model.EventType, provider *string) (int64, error) {
	if typ == nil && provider == nil {
		f.removeAllCalls++
		n := int64(len(f.groups))
		f.groups = nil
		return n, nil
	}
	return 0, nil
}

func (f *fakeEventStore) RemoveDraftEventGroups(_ context.Context) error { return nil }

func (f *fakeEventStore) PromoteDraftEventGroups(_ context.Context) error {
	f.promoteCalls++
	return nil
}

func (f *fakeEventStore) ListEventGroups(_ context.Context) ([]model.EventGroup, error) {
	return append([]model.EventGroup(nil), f.groups...), nil
}

func (f *fakeEventStore) FetchSignedEvents(_ context.Context) ([]string, error) {
	return append([]string(nil), f.signedEvents...), f.fetchErr
}

func (f *fakeEventStore) ExpireEventGroups(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeEventStore) UpdateEventGroupExpiry(_ context.Context, identifier string, expiry time.Time) error {
	if f.expiryUpdates == nil {
		f.expiryUpdates = make(map[string]time.Time)
	}
	f.expiryUpdates[identifier] = expiry
	return nil
}

func (f *fakeEventStore) RemoveEventGroup(_ context.Context, identifier string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removedIDs = append(f.removedIDs, identifier)
	kept := f.groups[:0]
	for _, g := range f.groups {
		if g.UniqueIdentifier() != identifier {
			kept = append(kept, g)
		}
	}
	f.groups = kept
	return nil
}

type removedEventRecord struct {
	typ    model.EventType
	date   time.Time
	reason model.RemovalReason
}

type fakeWalletStore struct {
	removeAllCalls int

	domesticStored []*transport.DomesticGreenCard
	domesticOK     bool
	domesticErr    error

	euStored []*transport.EuGreenCard
	euOK     bool
	euErr    error

	removedEvents   []removedEventRecord
	storeRemovedErr error
}

var _ repository.WalletStore = (*fakeWalletStore)(nil)

func (f *fakeWalletStore) EnsureWallet(_ context.Context) (*model.Wallet, error) {
	return &model.Wallet{Label: model.WalletLabel}, nil
}

func (f *fakeWalletStore) StoreDomesticGreenCard(_ context.Context, dto *transport.DomesticGreenCard, _ crypto.Provider) (bool, error) {
	if f.domesticErr != nil {
		return false, f.domesticErr
	}
	f.domesticStored = append(f.domesticStored, dto)
	return f.domesticOK, nil
}

func (f *fakeWalletStore) StoreEuGreenCard(_ context.Context, dto *transport.EuGreenCard, _ crypto.Provider) (bool, error) {
	if f.euErr != nil {
		return false, f.euErr
	}
	f.euStored = append(f.euStored, dto)
	return f.euOK, nil
}

func (f *fakeWalletStore) RemoveAllGreenCards(_ context.Context) (int64, error) {
	f.removeAllCalls++
	return 0, nil
}

func (f *fakeWalletStore) RemoveExpiredGreenCards(_ context.Context, _ time.Time) ([]model.ExpiredGreenCard, error) {
	return nil, nil
}

func (f *fakeWalletStore) ListGreenCards(_ context.Context) ([]model.GreenCard, error) {
	return nil, nil
}

func (f *fakeWalletStore) ListOrigins(_ context.Context, _ string) ([]model.Origin, error) {
	return nil, nil
}

func (f *fakeWalletStore) ListCredentials(_ context.Context, _ string) ([]model.Credential, error) {
	return nil, nil
}

func (f *fakeWalletStore) GreenCardsWithUnexpiredOrigins(_ context.Context, _ time.Time, _ *model.OriginType) ([]model.GreenCard, error) {
	return nil, nil
}

func (f *fakeWalletStore) StoreRemovedEvent(_ context.Context, typ model.EventType, eventDate time.Time, reason model.RemovalReason, _ []byte) (*model.RemovedEvent, error) {
	if f.storeRemovedErr != nil {
		return nil, f.storeRemovedErr
	}
	f.removedEvents = append(f.removedEvents, removedEventRecord{typ: typ, date: eventDate, reason: reason})
	return &model.RemovedEvent{Type: typ, EventDate: eventDate, Reason: reason}, nil
}

func (f *fakeWalletStore) ListRemovedEvents(_ context.Context) ([]model.RemovedEvent, error) {
	return nil, nil
}

func (f *fakeWalletStore) RemoveRemovedEvents(_ context.Context, _ model.RemovalReason) (int64, error) {
	return 0, nil
}

type fakeSecretStore struct {
	key        []byte
	setKeys    [][]byte
	clearCalls int
}

var _ repository.SecretStore = (*fakeSecretStore)(nil)

func (f *fakeSecretStore) Get(_ context.Context) ([]byte, error) {
	if f.key == nil {
		return nil, errs.ErrNotFound
	}
	return f.key, nil
}

func (f *fakeSecretStore) Set(_ context.Context, key []byte) error {
	f.key = key
	f.setKeys = append(f.setKeys, key)
	return nil
}

func (f *fakeSecretStore) Clear(_ context.Context) error {
	f.key = nil
	f.clearCalls++
	return nil
}

type issuerFixture struct {
	issuer  *Issuer
	client  *fakeClient
	crypto  *fakeCrypto
	events  *fakeEventStore
	wallet  *fakeWalletStore
	secrets *fakeSecretStore
}

func newIssuerFixture() *issuerFixture {
	f := &issuerFixture{
		client: &fakeClient{
			prepareEnvelope: &transport.PrepareIssueEnvelope{
				PrepareIssueMessage: base64.StdEncoding.EncodeToString([]byte("nonce")),
				SToken:              "stoken-1",
			},
		},
		crypto: &fakeCrypto{
			secretKey:  []byte("holder-secret-key"),
			commitment: "commitment",
		},
		events:  &fakeEventStore{signedEvents: []string{"signed-event-1"}},
		wallet:  &fakeWalletStore{domesticOK: true, euOK: true},
		secrets: &fakeSecretStore{},
	}
	f.issuer = NewIssuer(f.client, f.crypto, f.events, f.wallet, f.secrets,
		metrics.New(prometheus.NewRegistry()), zap.NewNop())
	return f
}

func requirePhase(t *testing.T, err error, phase Phase) *IssuanceError {
	t.Helper()
	var issErr *IssuanceError
	require.ErrorAs(t, err, &issErr)
	require.Equal(t, phase, issErr.Phase)
	return issErr
}

func TestIssuer_SecretKeyFailure_NoNetworkCall(t *testing.T) {
	f := newIssuerFixture()
	f.crypto.secretKey = nil
	f.crypto.secretErr = errors.New("rng broken")

	_, err := f.issuer.SignTheEventsIntoGreenCardsAndCredentials(context.Background(), nil, nil)
	requirePhase(t, err, PhaseSecretKey)
	require.ErrorIs(t, err, errs.ErrSecretKey)
	require.Zero(t, f.client.prepareCalls)
}

func TestIssuer_PrepareIssueServerError(t *testing.T) {
	f := newIssuerFixture()
	f.client.prepareEnvelope = nil
	f.client.prepareErr = &transport.ServerError{StatusCode: 500, Code: 99702}

	_, err := f.issuer.SignTheEventsIntoGreenCardsAndCredentials(context.Background(), nil, nil)
	requirePhase(t, err, PhasePrepareIssue)

	var serverErr *transport.ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, 500, serverErr.StatusCode)
	require.Equal(t, 99702, serverErr.Code)
}

func TestIssuer_UnparseablePrepareIssueMessage(t *testing.T) {
	f := newIssuerFixture()
	f.client.prepareEnvelope = &transport.PrepareIssueEnvelope{PrepareIssueMessage: "Wrong"}

	_, err := f.issuer.SignTheEventsIntoGreenCardsAndCredentials(context.Background(), nil, nil)
	requirePhase(t, err, PhasePrepareIssue)
	require.ErrorIs(t, err, errs.ErrParsePrepareIssue)
}

func TestIssuer_NoSignedEvents(t *testing.T) {
	f := newIssuerFixture()
	f.events.signedEvents = nil

	_, err := f.issuer.SignTheEventsIntoGreenCardsAndCredentials(context.Background(), nil, nil)
	requirePhase(t, err, PhaseCommitment)
	require.ErrorIs(t, err, errs.ErrNoSignedEvents)
}

func TestIssuer_EmptyCommitment(t *testing.T) {
	f := newIssuerFixture()
	f.crypto.commitment = ""

	_, err := f.issuer.SignTheEventsIntoGreenCardsAndCredentials(context.Background(), nil, nil)
	requirePhase(t, err, PhaseCommitment)
	require.ErrorIs(t, err, errs.ErrCommitment)
}

func TestIssuer_DomesticSuccess_KeepsSecretKey(t *testing.T) {
	f := newIssuerFixture()
	f.client.credsResp = &transport.GreenCardResponse{
		DomesticGreenCard: &transport.DomesticGreenCard{},
	}

	response, err := f.issuer.SignTheEventsIntoGreenCardsAndCredentials(context.Background(), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, response.DomesticGreenCard)

	require.Equal(t, 1, f.wallet.removeAllCalls)
	require.Len(t, f.wallet.domesticStored, 1)
	require.Equal(t, [][]byte{[]byte("holder-secret-key")}, f.secrets.setKeys)
	require.Zero(t, f.secrets.clearCalls)
	require.Equal(t, 1, f.events.promoteCalls)

	require.Equal(t, []string{"signed-event-1"}, f.client.credsReq.Events)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("commitment")), f.client.credsReq.IssueCommitmentMessage)
	require.Equal(t, "stoken-1", f.client.credsReq.SToken)
	require.Empty(t, f.client.credsReq.Flows)
}

func TestIssuer_EuOnly_ClearsSecretKey(t *testing.T) {
	f := newIssuerFixture()
	f.secrets.key = []byte("old-key")
	f.client.credsResp = &transport.GreenCardResponse{
		EuGreenCards: []transport.EuGreenCard{{Credential: "eyJ..."}},
	}

	_, err := f.issuer.SignTheEventsIntoGreenCardsAndCredentials(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, f.wallet.euStored, 1)
	require.Empty(t, f.secrets.setKeys)
	require.Equal(t, 1, f.secrets.clearCalls)
	require.Nil(t, f.secrets.key)
}

func TestIssuer_EventModeSetsFlows(t *testing.T) {
	f := newIssuerFixture()
	f.client.credsResp = &transport.GreenCardResponse{}
	mode := model.EventTypeVaccination

	_, err := f.issuer.SignTheEventsIntoGreenCardsAndCredentials(context.Background(), &mode, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"vaccination"}, f.client.credsReq.Flows)
}

func TestIssuer_EvaluatorRejects(t *testing.T) {
	f := newIssuerFixture()
	f.client.credsResp = &transport.GreenCardResponse{
		DomesticGreenCard: &transport.DomesticGreenCard{},
	}
	reject := EvaluatorFunc(func(*transport.GreenCardResponse) bool { return false })

	_, err := f.issuer.SignTheEventsIntoGreenCardsAndCredentials(context.Background(), nil, reject)
	requirePhase(t, err, PhaseCredentials)
	require.ErrorIs(t, err, errs.ErrDidNotEvaluate)
	require.Zero(t, f.wallet.removeAllCalls)
}

func TestIssuer_StoreFailure(t *testing.T) {
	f := newIssuerFixture()
	f.wallet.domesticOK = false
	f.client.credsResp = &transport.GreenCardResponse{
		DomesticGreenCard: &transport.DomesticGreenCard{},
		EuGreenCards:      []transport.EuGreenCard{{Credential: "eyJ..."}},
	}

	_, err := f.issuer.SignTheEventsIntoGreenCardsAndCredentials(context.Background(), nil, nil)
	requirePhase(t, err, PhaseStore)
	require.ErrorIs(t, err, errs.ErrSaveGreenCards)

	// the failing domestic card did not stop the EU card from being stored
	require.Len(t, f.wallet.euStored, 1)
}

func TestIssuer_PersistenceErrorWrapsSaveSentinel(t *testing.T) {
	f := newIssuerFixture()
	f.wallet.domesticErr = errors.New("disk full")
	f.client.credsResp = &transport.GreenCardResponse{
		DomesticGreenCard: &transport.DomesticGreenCard{},
	}

	_, err := f.issuer.SignTheEventsIntoGreenCardsAndCredentials(context.Background(), nil, nil)
	requirePhase(t, err, PhaseStore)
	require.ErrorIs(t, err, errs.ErrSaveGreenCards)
}

func TestIssuer_BlobExpiryHintsApplied(t *testing.T) {
	f := newIssuerFixture()
	expiry := time.Now().UTC().Add(24 * time.Hour)
	f.client.credsResp = &transport.GreenCardResponse{
		BlobExpireDates: []transport.BlobExpiry{
			{Identifier: "group-1", ExpirationDate: expiry},
		},
	}

	_, err := f.issuer.SignTheEventsIntoGreenCardsAndCredentials(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, expiry, f.events.expiryUpdates["group-1"])
}

func TestIssuer_SecondAttemptWhileInFlight(t *testing.T) {
	f := newIssuerFixture()
	f.issuer.mu.Lock()
	f.issuer.inFlight = true
	f.issuer.mu.Unlock()

	_, err := f.issuer.SignTheEventsIntoGreenCardsAndCredentials(context.Background(), nil, nil)
	require.ErrorIs(t, err, errs.ErrIssuanceInFlight)
	require.Zero(t, f.client.prepareCalls)
}
