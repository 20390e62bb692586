package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/educhain-network/educhain-go/internal/chain"
	"github.com/educhain-network/educhain-go/internal/educhain"
)

// Revert reason fragments emitted by the EduChain contract. Matching is by
// substring: wallet and node versions wrap the reason differently
// ("execution reverted: ...", "VM Exception while processing transaction:
// revert ...").
const (
	revertAlreadyEnrolled  = "already enrolled"
	revertModuleCompleted  = "module already completed"
	revertCertIssued       = "certificate already issued"
	revertNotCompleted     = "course not completed yet"
	revertIncorrectPayment = "incorrect payment"
)

// classifySignError maps a signing failure onto the error taxonomy.
// wallet.Adapter already classifies user rejection and account staleness;
// everything else from the signer side is a submission rejection or a
// transport problem.
func classifySignError(op string, err error) error {
	if educhain.CodeOf(err) != "" {
		return err
	}
	var rpcErr *chain.RPCError
	if errors.As(err, &rpcErr) {
		if isUserDecline(rpcErr.Message) {
			return educhain.WrapError(educhain.ErrCodeSubmissionRejected, op+": signer declined", err)
		}
		return educhain.WrapError(educhain.ErrCodeSubmissionRejected, op+": signing failed", err)
	}
	return educhain.WrapError(educhain.ErrCodeTransport, op+": signer unreachable", err)
}

// classifyLedgerError maps a submission failure onto the error taxonomy.
// Contract reverts arrive as RPC error objects carrying the revert reason.
func classifyLedgerError(op string, err error) error {
	if educhain.CodeOf(err) != "" {
		return err
	}

	var rpcErr *chain.RPCError
	if !errors.As(err, &rpcErr) {
		return educhain.WrapError(educhain.ErrCodeTransport, op+": ledger unreachable", err)
	}

	reason := strings.ToLower(rpcErr.Message + " " + rpcErr.Data)
	switch {
	case strings.Contains(reason, revertAlreadyEnrolled):
		return educhain.WrapError(educhain.ErrCodeAlreadyEnrolled, "already enrolled in this course", err)
	case strings.Contains(reason, revertModuleCompleted):
		return educhain.WrapError(educhain.ErrCodeAlreadyCompleted, "module already completed", err)
	case strings.Contains(reason, revertCertIssued):
		return educhain.WrapError(educhain.ErrCodeAlreadyIssued, "certificate already issued for this course", err)
	case strings.Contains(reason, revertNotCompleted):
		return educhain.WrapError(educhain.ErrCodeNotEligible, "course not completed yet", err)
	case strings.Contains(reason, revertIncorrectPayment):
		return educhain.WrapError(educhain.ErrCodeLedgerRejected, "payment does not match course price", err)
	case strings.Contains(reason, "insufficient funds"):
		return educhain.WrapError(educhain.ErrCodeLedgerRejected, "insufficient funds", err)
	case isUserDecline(reason):
		return educhain.WrapError(educhain.ErrCodeSubmissionRejected, op+": signer declined", err)
	default:
		return educhain.WrapError(educhain.ErrCodeLedgerRejected, op+" rejected by ledger", err)
	}
}

// classifyWaitError maps a confirmation-wait failure onto the taxonomy. A
// local timeout does not mean the operation failed: the transaction may
// still land, and the caller must re-read ledger state before proceeding.
func classifyWaitError(op, txHash string, err error) error {
	if educhain.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return educhain.WrapError(educhain.ErrCodeConfirmationTimeout,
			op+" confirmation timed out; tx "+txHash+" may still complete", err)
	}
	var rpcErr *chain.RPCError
	if errors.As(err, &rpcErr) {
		return educhain.WrapError(educhain.ErrCodeTransport, op+": receipt lookup failed", err)
	}
	return educhain.WrapError(educhain.ErrCodeTransport, op+": ledger unreachable", err)
}

func isUserDecline(reason string) bool {
	reason = strings.ToLower(reason)
	return strings.Contains(reason, "user rejected") || strings.Contains(reason, "user denied")
}
