package devprovider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/greenwallet/internal/crypto"
	"github.com/and161185/greenwallet/internal/model"
)

func TestNew_EmptyKey(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestGenerateSecretKey(t *testing.T) {
	p, err := New([]byte("dev-key"))
	require.NoError(t, err)

	k1, err := p.GenerateSecretKey()
	require.NoError(t, err)
	require.Len(t, k1, secretKeyLen)

	k2, err := p.GenerateSecretKey()
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}

func TestGenerateCommitmentMessage(t *testing.T) {
	p, err := New([]byte("dev-key"))
	require.NoError(t, err)

	msg := []byte("prepare-issue-nonce")
	key := []byte("holder-secret-key-32-bytes-long!")

	c1, err := p.GenerateCommitmentMessage(msg, key)
	require.NoError(t, err)
	require.NotEmpty(t, c1)

	// deterministic for the same pair
	c2, err := p.GenerateCommitmentMessage(msg, key)
	require.NoError(t, err)
	require.Equal(t, c1, c2)

	// bound to both inputs
	c3, err := p.GenerateCommitmentMessage([]byte("other-nonce"), key)
	require.NoError(t, err)
	require.NotEqual(t, c1, c3)
	c4, err := p.GenerateCommitmentMessage(msg, []byte("another-secret-key-32-bytes-long"))
	require.NoError(t, err)
	require.NotEqual(t, c1, c4)

	_, err = p.GenerateCommitmentMessage(nil, key)
	require.Error(t, err)
	_, err = p.GenerateCommitmentMessage(msg, nil)
	require.Error(t, err)
}

func TestCredentialRoundTrip(t *testing.T) {
	p, err := New([]byte("dev-key"))
	require.NoError(t, err)

	attributes := crypto.EuCredentialAttributes{
		CredentialVersion: 2,
		Issuer:            "NL",
		ExpirationTime:    1893456000,
		Identity:          model.Identity{FirstName: "Henk", LastName: "de Vries", BirthDateString: "1970-03-15"},
		Certificate: crypto.DCC{
			Vaccinations: []crypto.DCCEntry{{Date: "2021-06-01"}},
		},
	}
	attributeSet, err := json.Marshal(attributes)
	require.NoError(t, err)

	credential, err := p.CreateCredential(attributeSet)
	require.NoError(t, err)

	decoded, err := p.ReadEuCredentials(credential)
	require.NoError(t, err)
	require.Equal(t, attributes, *decoded)

	eventType, ok := decoded.EventType()
	require.True(t, ok)
	require.Equal(t, model.EventTypeVaccination, eventType)
	eventDate, ok := decoded.EventDate()
	require.True(t, ok)
	require.Equal(t, "2021-06-01", eventDate.Format("2006-01-02"))
}

func TestReadEuCredentials_WrongKey(t *testing.T) {
	issuer, err := New([]byte("dev-key"))
	require.NoError(t, err)
	other, err := New([]byte("other-key"))
	require.NoError(t, err)

	credential, err := issuer.CreateCredential([]byte(`{"credentialVersion":1}`))
	require.NoError(t, err)

	_, err = other.ReadEuCredentials(credential)
	require.Error(t, err)
}

func TestCreateCredential_BadAttributeSet(t *testing.T) {
	p, err := New([]byte("dev-key"))
	require.NoError(t, err)
	_, err = p.CreateCredential([]byte("not json"))
	require.Error(t, err)
}
