// Package gateway translates course lifecycle operations into ledger calls
// and decodes ledger responses into domain results, tolerating the
// heterogeneous confirmation encodings produced by different node versions.
package gateway

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/educhain-network/educhain-go/internal/chain"
	"github.com/educhain-network/educhain-go/internal/educhain"
	"github.com/educhain-network/educhain-go/internal/wallet"
	"github.com/educhain-network/educhain-go/pkg/logger"
)

// Contract call signatures and events of the EduChain ledger contract.
const (
	sigCreateCourse     = "createCourse(string,string,uint256,string,uint256)"
	sigEnrollInCourse   = "enrollInCourse(uint256)"
	sigCompleteModule   = "completeModule(uint256,uint256)"
	sigIssueCertificate = "issueCertificate(uint256)"

	evCourseCreated        = "CourseCreated"
	evCourseCreatedSig     = "CourseCreated(uint256,address,string,uint256)"
	evCertificateIssued    = "CertificateIssued"
	evCertificateIssuedSig = "CertificateIssued(uint256,address,uint256,uint256)"
)

// Signer signs ledger transactions for a session and detects session
// staleness. Implemented by wallet.Adapter.
type Signer interface {
	Sign(ctx context.Context, s wallet.Session, msg chain.CallMsg) (string, error)
	Verify(s wallet.Session) error
}

// Gateway is the typed request/response boundary to the EduChain contract.
type Gateway struct {
	client   *chain.Client
	signer   Signer
	contract string
	log      *logger.Logger

	confirmWait  time.Duration
	pollInterval time.Duration
}

// Config holds gateway configuration.
type Config struct {
	Client          *chain.Client
	Signer          Signer
	ContractAddress string
	ConfirmWait     time.Duration
	PollInterval    time.Duration
	Logger          *logger.Logger
}

// New creates a gateway for the contract at cfg.ContractAddress.
func New(cfg Config) (*Gateway, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("chain client required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signer required")
	}
	if !educhain.AccountID(cfg.ContractAddress).Valid() {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	confirmWait := cfg.ConfirmWait
	if confirmWait <= 0 {
		confirmWait = chain.DefaultTxWaitTimeout
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = chain.DefaultPollInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("gateway")
	}

	return &Gateway{
		client:       cfg.Client,
		signer:       cfg.Signer,
		contract:     cfg.ContractAddress,
		log:          log,
		confirmWait:  confirmWait,
		pollInterval: pollInterval,
	}, nil
}

// CreateCourse submits a course creation request and recovers the
// ledger-assigned course ID from the confirmation payload.
func (g *Gateway) CreateCourse(ctx context.Context, session wallet.Session, draft educhain.CourseDraft) (educhain.CourseID, error) {
	title := strings.TrimSpace(draft.Title)
	description := strings.TrimSpace(draft.Description)
	contentURL := strings.TrimSpace(draft.ContentURL)

	if title == "" {
		return 0, educhain.NewError(educhain.ErrCodeValidation, "course title is required")
	}
	if description == "" {
		return 0, educhain.NewError(educhain.ErrCodeValidation, "course description is required")
	}
	if contentURL == "" {
		return 0, educhain.NewError(educhain.ErrCodeValidation, "course content URL is required")
	}
	if draft.ModuleCount < 1 {
		return 0, educhain.NewError(educhain.ErrCodeValidation, "module count must be at least 1")
	}

	price, err := ParsePrice(draft.Price)
	if err != nil {
		return 0, err
	}

	data, err := chain.EncodeCall(sigCreateCourse,
		chain.Str(title),
		chain.Str(description),
		chain.Uint(price),
		chain.Str(contentURL),
		chain.Uint64(uint64(draft.ModuleCount)),
	)
	if err != nil {
		return 0, educhain.WrapError(educhain.ErrCodeValidation, "encode createCourse", err)
	}

	receipt, err := g.submit(ctx, "createCourse", session, chain.NewCallMsg(string(session.Account), g.contract, nil, data))
	if err != nil {
		return 0, err
	}

	id, err := g.recoverID(ctx, receipt, idRecoverySpec{
		eventName: evCourseCreated,
		signature: evCourseCreatedSig,
		argName:   "courseId",
		requery: func(ctx context.Context) ([]uint64, error) {
			return g.courseIDsByTeacher(ctx, session.Account)
		},
	})
	if err != nil {
		return 0, err
	}

	g.log.WithFields(map[string]interface{}{
		"course_id": id,
		"teacher":   string(session.Account),
	}).Info("course created")
	return educhain.CourseID(id), nil
}

// Enroll submits an enrollment request paying the given amount, which must
// equal the course's current price.
func (g *Gateway) Enroll(ctx context.Context, session wallet.Session, courseID educhain.CourseID, payment *big.Int) error {
	if courseID == 0 {
		return educhain.NewError(educhain.ErrCodeValidation, "course ID is required")
	}
	if payment == nil || payment.Sign() < 0 {
		return educhain.NewError(educhain.ErrCodeValidation, "payment must be a non-negative amount")
	}

	data, err := chain.EncodeCall(sigEnrollInCourse, chain.Uint64(uint64(courseID)))
	if err != nil {
		return educhain.WrapError(educhain.ErrCodeValidation, "encode enrollInCourse", err)
	}

	_, err = g.submit(ctx, "enroll", session, chain.NewCallMsg(string(session.Account), g.contract, payment, data))
	if err != nil {
		return err
	}

	g.log.WithFields(map[string]interface{}{
		"course_id": courseID,
		"student":   string(session.Account),
	}).Info("enrolled in course")
	return nil
}

// CompleteModule submits a module completion request. The module index is
// bounds-checked locally against the course's module count before anything
// reaches the signer.
func (g *Gateway) CompleteModule(ctx context.Context, session wallet.Session, courseID educhain.CourseID, moduleIndex uint32) error {
	if courseID == 0 {
		return educhain.NewError(educhain.ErrCodeValidation, "course ID is required")
	}

	course, err := g.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if moduleIndex >= course.ModuleCount {
		return educhain.NewError(educhain.ErrCodeValidation,
			fmt.Sprintf("module index %d out of range for course with %d modules", moduleIndex, course.ModuleCount))
	}

	data, err := chain.EncodeCall(sigCompleteModule,
		chain.Uint64(uint64(courseID)),
		chain.Uint64(uint64(moduleIndex)),
	)
	if err != nil {
		return educhain.WrapError(educhain.ErrCodeValidation, "encode completeModule", err)
	}

	_, err = g.submit(ctx, "completeModule", session, chain.NewCallMsg(string(session.Account), g.contract, nil, data))
	if err != nil {
		return err
	}

	g.log.WithFields(map[string]interface{}{
		"course_id":    courseID,
		"module_index": moduleIndex,
		"student":      string(session.Account),
	}).Info("module completed")
	return nil
}

// IssueCertificate submits a certificate issuance request and recovers the
// ledger-assigned certificate ID from the confirmation payload.
func (g *Gateway) IssueCertificate(ctx context.Context, session wallet.Session, courseID educhain.CourseID) (educhain.CertificateID, error) {
	if courseID == 0 {
		return 0, educhain.NewError(educhain.ErrCodeValidation, "course ID is required")
	}

	data, err := chain.EncodeCall(sigIssueCertificate, chain.Uint64(uint64(courseID)))
	if err != nil {
		return 0, educhain.WrapError(educhain.ErrCodeValidation, "encode issueCertificate", err)
	}

	receipt, err := g.submit(ctx, "issueCertificate", session, chain.NewCallMsg(string(session.Account), g.contract, nil, data))
	if err != nil {
		return 0, err
	}

	id, err := g.recoverID(ctx, receipt, idRecoverySpec{
		eventName: evCertificateIssued,
		signature: evCertificateIssuedSig,
		argName:   "certificateId",
		requery: func(ctx context.Context) ([]uint64, error) {
			return g.certificateIDsByStudent(ctx, session.Account)
		},
	})
	if err != nil {
		return 0, err
	}

	g.log.WithFields(map[string]interface{}{
		"certificate_id": id,
		"course_id":      courseID,
		"student":        string(session.Account),
	}).Info("certificate issued")
	return educhain.CertificateID(id), nil
}

// submit signs, broadcasts, and awaits confirmation of a write. The
// session is re-verified once the receipt arrives: the wallet may have
// switched accounts during the wait.
func (g *Gateway) submit(ctx context.Context, op string, session wallet.Session, msg chain.CallMsg) (*chain.Receipt, error) {
	signed, err := g.signer.Sign(ctx, session, msg)
	if err != nil {
		return nil, classifySignError(op, err)
	}

	submissions.WithLabelValues(op).Inc()
	txHash, err := g.client.SendRawTransaction(ctx, signed)
	if err != nil {
		cls := classifyLedgerError(op, err)
		failures.WithLabelValues(op, educhain.CodeOf(cls)).Inc()
		return nil, cls
	}

	g.log.WithFields(map[string]interface{}{
		"op":      op,
		"tx_hash": txHash,
	}).Debug("transaction submitted")

	wctx, cancel := context.WithTimeout(ctx, g.confirmWait)
	defer cancel()

	receipt, err := g.client.WaitForReceipt(wctx, txHash, g.pollInterval)
	if err != nil {
		cls := classifyWaitError(op, txHash, err)
		failures.WithLabelValues(op, educhain.CodeOf(cls)).Inc()
		return nil, cls
	}

	if err := g.signer.Verify(session); err != nil {
		failures.WithLabelValues(op, educhain.ErrCodeAccountChanged).Inc()
		return nil, err
	}

	if !receipt.StatusOK() {
		failures.WithLabelValues(op, educhain.ErrCodeLedgerRejected).Inc()
		return nil, educhain.NewError(educhain.ErrCodeLedgerRejected,
			fmt.Sprintf("%s reverted (tx %s)", op, txHash))
	}

	confirmations.WithLabelValues(op).Inc()
	return receipt, nil
}
