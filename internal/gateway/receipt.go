package gateway

import (
	"context"
	"strconv"
	"strings"

	"github.com/educhain-network/educhain-go/internal/chain"
	"github.com/educhain-network/educhain-go/internal/educhain"
)

// idRecoverySpec describes how to recover a ledger-assigned identifier
// from a confirmation payload for one write operation.
type idRecoverySpec struct {
	eventName string
	signature string
	argName   string
	// requery lists the actor's owned resource IDs, oldest first. Used by
	// the status-only fallback: the most recently appended entry is the
	// one this operation created.
	requery func(ctx context.Context) ([]uint64, error)
}

// recoverID extracts the identifier assigned by a confirmed write. The
// three confirmation encodings are attempted in strict order: decoded
// event list, raw log list, then status-only re-query. When all three
// fail the operation still succeeded; the caller gets a documented
// sentinel instead of a guess.
func (g *Gateway) recoverID(ctx context.Context, receipt *chain.Receipt, spec idRecoverySpec) (uint64, error) {
	if id, ok := idFromEvents(receipt, spec); ok {
		return id, nil
	}
	if id, ok := idFromLogs(receipt, spec); ok {
		return id, nil
	}
	if id, ok := g.idFromRequery(ctx, receipt, spec); ok {
		return id, nil
	}

	g.log.WithFields(map[string]interface{}{
		"event": spec.eventName,
		"shape": receipt.Shape().String(),
	}).Warn("confirmed write but identifier unrecoverable")
	return 0, educhain.NewError(educhain.ErrCodeIDRecovery,
		spec.eventName+" identifier unrecoverable from receipt; operation succeeded, re-query by listing")
}

// idFromEvents reads the identifier from a decoded event list.
func idFromEvents(receipt *chain.Receipt, spec idRecoverySpec) (uint64, bool) {
	ev := receipt.FindEvent(spec.eventName)
	if ev == nil {
		return 0, false
	}
	raw, ok := ev.Args[spec.argName]
	if !ok {
		return 0, false
	}
	id, err := parseIDValue(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

// idFromLogs locates the raw log whose first topic is the expected event
// signature hash and decodes the identifier from the first indexed topic.
func idFromLogs(receipt *chain.Receipt, spec idRecoverySpec) (uint64, bool) {
	entry := receipt.FindLogByTopic(chain.EventTopic(spec.signature))
	if entry == nil || len(entry.Topics) < 2 {
		return 0, false
	}
	id, err := chain.ParseHexQuantity(entry.Topics[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// idFromRequery is the status-only fallback: the receipt confirms success
// without event data, so the actor's owned resources are listed and the
// most recently appended entry taken as the created identifier.
func (g *Gateway) idFromRequery(ctx context.Context, receipt *chain.Receipt, spec idRecoverySpec) (uint64, bool) {
	if !receipt.StatusOK() {
		return 0, false
	}
	ids, err := spec.requery(ctx)
	if err != nil || len(ids) == 0 {
		return 0, false
	}
	return ids[len(ids)-1], true
}

// parseIDValue parses an identifier rendered either as a decimal string or
// a 0x-prefixed hex quantity, depending on the node version.
func parseIDValue(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		return chain.ParseHexQuantity(raw)
	}
	return strconv.ParseUint(raw, 10, 64)
}
