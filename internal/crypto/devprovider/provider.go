// Package devprovider is a deterministic stand-in for the mobile core crypto
// library. It honours the provider contract without real blind signatures:
// commitments are keyed MACs and credentials are signed JWTs, so attribute
// sets stay inspectable in development and tests.
package devprovider

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/and161185/greenwallet/internal/crypto"
)

const secretKeyLen = 32

// Provider implements crypto.Provider with development-grade primitives.
type Provider struct {
	signKey []byte
}

// New constructs a provider signing credentials with the given HS256 key.
func New(signKey []byte) (*Provider, error) {
	if len(signKey) == 0 {
		return nil, errors.New("empty sign key")
	}
	return &Provider{signKey: signKey}, nil
}

// GenerateSecretKey creates a fresh random holder secret key.
func (p *Provider) GenerateSecretKey() ([]byte, error) {
	key := make([]byte, secretKeyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateCommitmentMessage produces a keyed MAC over the prepare-issue
// message. Deterministic for a given (message, key) pair.
func (p *Provider) GenerateCommitmentMessage(prepareIssueMessage, secretKey []byte) (string, error) {
	if len(prepareIssueMessage) == 0 || len(secretKey) == 0 {
		return "", errors.New("empty prepare issue message or secret key")
	}
	mac, err := blake2b.New256(secretKey)
	if err != nil {
		return "", err
	}
	mac.Write(prepareIssueMessage)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// credentialClaims carries the issuer attribute set inside a dev credential.
type credentialClaims struct {
	Attributes crypto.EuCredentialAttributes `json:"eca"`
	jwt.RegisteredClaims
}

// CreateCredential signs one issuer response attribute set into a JWT credential.
func (p *Provider) CreateCredential(attributeSet []byte) ([]byte, error) {
	var attributes crypto.EuCredentialAttributes
	if err := json.Unmarshal(attributeSet, &attributes); err != nil {
		return nil, err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, credentialClaims{Attributes: attributes})
	signed, err := token.SignedString(p.signKey)
	if err != nil {
		return nil, err
	}
	return []byte(signed), nil
}

// ReadEuCredentials decodes the attribute set of a previously issued credential.
func (p *Provider) ReadEuCredentials(credential []byte) (*crypto.EuCredentialAttributes, error) {
	var claims credentialClaims
	_, err := jwt.ParseWithClaims(string(credential), &claims, func(*jwt.Token) (any, error) {
		return p.signKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return &claims.Attributes, nil
}
