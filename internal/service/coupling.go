package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/and161185/greenwallet/internal/crypto"
	"github.com/and161185/greenwallet/internal/model"
	"github.com/and161185/greenwallet/internal/transport"
)

// Coupler converts a scanned paper proof plus coupling code into a synthetic
// event that flows through the ordinary issuance pipeline.
type Coupler struct {
	crypto  crypto.Provider
	network transport.Client
	log     *zap.Logger
}

// NewCoupler constructs a coupling service.
func NewCoupler(provider crypto.Provider, network transport.Client, log *zap.Logger) *Coupler {
	return &Coupler{crypto: provider, network: network, log: log}
}

// CheckCouplingStatus asks the server whether the paper proof may be coupled.
func (c *Coupler) CheckCouplingStatus(ctx context.Context, dcc, couplingCode string) (*transport.CouplingResponse, error) {
	return c.network.CheckCouplingStatus(ctx, dcc, couplingCode)
}

// Convert synthesizes a paperflow event wrapper from a scanned proof.
// The proof's attributes must decode for identity display; when they do not,
// conversion fails without side effects.
func (c *Coupler) Convert(dcc, couplingCode string) (*model.EventResultWrapper, bool) {
	attributes, err := c.crypto.ReadEuCredentials([]byte(dcc))
	if err != nil {
		c.log.Warn("cannot read credentials from paper proof", zap.Error(err))
		return nil, false
	}

	identity := attributes.Identity
	return &model.EventResultWrapper{
		ProviderIdentifier: model.PaperproofIdentifier,
		ProtocolVersion:    model.ProtocolVersionV3,
		Identity:           &identity,
		Status:             "complete",
		Events: []model.Event{{
			Type:   "paperFlow",
			Unique: dcc,
			DCCEvent: &model.DCCEvent{
				Credential:   dcc,
				CouplingCode: couplingCode,
			},
		}},
	}, true
}
