package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/greenwallet/internal/model"
	"github.com/and161185/greenwallet/internal/transport"
)

// BlockResult reports which block items were applied and which were skipped,
// so the per-item silent skipping stays auditable.
type BlockResult struct {
	Applied []transport.BlobExpiry
	Skipped []transport.BlobExpiry
}

// ApplyBlockedEvents processes server-driven blocking hints: for every item
// with a reason it writes a removed-event audit record and deletes the
// underlying event group. Items that cannot be decoded are skipped rather
// than aborting the batch; one garbled blob must not block the rest, and a
// garbled message must not reach the user.
func (iss *Issuer) ApplyBlockedEvents(ctx context.Context, items []transport.BlobExpiry) (BlockResult, error) {
	var result BlockResult

	groups, err := iss.events.ListEventGroups(ctx)
	if err != nil {
		return result, err
	}
	byIdentifier := make(map[string]*model.EventGroup, len(groups))
	for i := range groups {
		byIdentifier[groups[i].UniqueIdentifier()] = &groups[i]
	}

	for _, item := range items {
		if item.Reason == "" {
			continue
		}
		group, found := byIdentifier[item.Identifier]
		if !found {
			result.Skipped = append(result.Skipped, item)
			continue
		}
		eventType, eventDate, ok := iss.describeBlockedGroup(group)
		if !ok {
			result.Skipped = append(result.Skipped, item)
			continue
		}
		if _, err := iss.wallet.StoreRemovedEvent(ctx, eventType, eventDate, model.RemovalReasonBlockedEvent, group.Payload); err != nil {
			iss.log.Warn("cannot persist removed event", zap.String("identifier", item.Identifier), zap.Error(err))
			result.Skipped = append(result.Skipped, item)
			continue
		}
		if err := iss.events.RemoveEventGroup(ctx, item.Identifier); err != nil {
			iss.log.Warn("cannot remove blocked event group", zap.String("identifier", item.Identifier), zap.Error(err))
			result.Skipped = append(result.Skipped, item)
			continue
		}
		iss.metrics.IncRemovedEventRecorded(string(model.RemovalReasonBlockedEvent))
		result.Applied = append(result.Applied, item)
	}
	return result, nil
}

// describeBlockedGroup resolves the event type and date to record for a
// blocked group. Paper proofs need their embedded credential decoded; the
// other types carry their own stored type.
func (iss *Issuer) describeBlockedGroup(group *model.EventGroup) (model.EventType, time.Time, bool) {
	if group.Type != model.EventTypePaperflow {
		return group.Type, group.CreatedAt, true
	}
	dcc, ok := model.DecodeEventGroupDCC(group.Payload)
	if !ok {
		return "", time.Time{}, false
	}
	attributes, err := iss.crypto.ReadEuCredentials([]byte(dcc.Credential))
	if err != nil {
		return "", time.Time{}, false
	}
	eventType, ok := attributes.EventType()
	if !ok {
		return "", time.Time{}, false
	}
	eventDate, ok := attributes.EventDate()
	if !ok {
		eventDate = group.CreatedAt
	}
	return eventType, eventDate, true
}

// RemoveEventGroupsWithMismatchedIdentity audits and wipes every stored event
// group after an identity mismatch was detected. Removal happens before the
// mismatching remote events are merged, so the wallet never holds events of
// two different people.
func (iss *Issuer) RemoveEventGroupsWithMismatchedIdentity(ctx context.Context) (int, error) {
	groups, err := iss.events.ListEventGroups(ctx)
	if err != nil {
		return 0, err
	}
	recorded := 0
	for i := range groups {
		group := &groups[i]
		if _, err := iss.wallet.StoreRemovedEvent(ctx, group.Type, group.CreatedAt, model.RemovalReasonMismatchedIdentity, group.Payload); err != nil {
			iss.log.Warn("cannot persist removed event", zap.Error(err))
			continue
		}
		iss.metrics.IncRemovedEventRecorded(string(model.RemovalReasonMismatchedIdentity))
		recorded++
	}
	if _, err := iss.events.RemoveEventGroups(ctx, nil, nil); err != nil {
		return recorded, err
	}
	return recorded, nil
}
