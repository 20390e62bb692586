// Package coordinator orchestrates the enroll → complete modules → issue
// certificate workflow on top of the ledger gateway. Every write is gated
// on a fresh ledger read, never on cached flags; writes for the same
// (student, course) pair are serialized through an in-flight guard.
package coordinator

import (
	"context"
	"math/big"
	"sync"

	"github.com/educhain-network/educhain-go/internal/educhain"
	"github.com/educhain-network/educhain-go/internal/viewcache"
	"github.com/educhain-network/educhain-go/internal/wallet"
	"github.com/educhain-network/educhain-go/pkg/logger"
)

// Gateway is the ledger boundary the coordinator drives. Implemented by
// gateway.Gateway.
type Gateway interface {
	CreateCourse(ctx context.Context, session wallet.Session, draft educhain.CourseDraft) (educhain.CourseID, error)
	Enroll(ctx context.Context, session wallet.Session, courseID educhain.CourseID, payment *big.Int) error
	CompleteModule(ctx context.Context, session wallet.Session, courseID educhain.CourseID, moduleIndex uint32) error
	IssueCertificate(ctx context.Context, session wallet.Session, courseID educhain.CourseID) (educhain.CertificateID, error)

	GetCourse(ctx context.Context, id educhain.CourseID) (*educhain.Course, error)
	GetProgress(ctx context.Context, courseID educhain.CourseID, student educhain.AccountID) (educhain.Progress, error)
	GetCertificatesByStudent(ctx context.Context, student educhain.AccountID) ([]*educhain.Certificate, error)
}

// Coordinator runs multi-step course lifecycle workflows.
type Coordinator struct {
	gw    Gateway
	cache *viewcache.Cache
	log   *logger.Logger

	mu       sync.Mutex
	inflight map[viewcache.Key]struct{}
}

// New creates a coordinator over the given gateway and cache.
func New(gw Gateway, cache *viewcache.Cache, log *logger.Logger) *Coordinator {
	if cache == nil {
		cache = viewcache.New()
	}
	if log == nil {
		log = logger.NewDefault("coordinator")
	}
	return &Coordinator{
		gw:       gw,
		cache:    cache,
		log:      log,
		inflight: make(map[viewcache.Key]struct{}),
	}
}

// Cache exposes the advisory view cache for rendering.
func (c *Coordinator) Cache() *viewcache.Cache { return c.cache }

// InvalidateStudent discards all cached state for a student. Wired to the
// wallet adapter's account-change notification.
func (c *Coordinator) InvalidateStudent(student educhain.AccountID) {
	c.cache.InvalidateStudent(student)
}

// acquire takes the in-flight write slot for a key. At most one write per
// (student, course) pair may be outstanding; a second request is rejected
// locally without ever reaching the signer.
func (c *Coordinator) acquire(key viewcache.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[key]; busy {
		return educhain.NewError(educhain.ErrCodeOperationInProgress,
			"another write for this course is already in flight")
	}
	c.inflight[key] = struct{}{}
	return nil
}

func (c *Coordinator) release(key viewcache.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
}

// CreateCourse submits a new course and caches the confirmed record.
func (c *Coordinator) CreateCourse(ctx context.Context, session wallet.Session, draft educhain.CourseDraft) (educhain.CourseID, error) {
	id, err := c.gw.CreateCourse(ctx, session, draft)
	if err != nil {
		return 0, err
	}

	// Identifier recovered; the record itself is fetched back from the
	// ledger rather than synthesized from the draft.
	if course, err := c.gw.GetCourse(ctx, id); err == nil {
		c.cache.PutCourse(course)
	}
	return id, nil
}

// Enroll moves a (student, course) pair from NotEnrolled to Enrolled. An
// already-enrolled pair short-circuits to success without submitting.
func (c *Coordinator) Enroll(ctx context.Context, session wallet.Session, courseID educhain.CourseID) error {
	key := viewcache.Key{Student: session.Account, Course: courseID}
	if err := c.acquire(key); err != nil {
		return err
	}
	defer c.release(key)

	progress, err := c.gw.GetProgress(ctx, courseID, session.Account)
	if err != nil {
		return err
	}
	if progress.Enrolled {
		c.cache.SetConfirmed(key, progress)
		return nil
	}

	course, err := c.gw.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	c.cache.PutCourse(course)

	token := c.cache.StageProvisional(key, educhain.Progress{Enrolled: true})

	err = c.gw.Enroll(ctx, session, courseID, course.Price)
	if err != nil && !educhain.Recoverable(err) {
		c.cache.Rollback(key, token)
		return err
	}

	return c.confirmProgress(ctx, key, session.Account, courseID)
}

// CompleteModule records completion of one module. Re-completing a module
// is a no-op success, locally when the fresh read already counts it, or
// via the ledger's already-completed classification.
func (c *Coordinator) CompleteModule(ctx context.Context, session wallet.Session, courseID educhain.CourseID, moduleIndex uint32) error {
	key := viewcache.Key{Student: session.Account, Course: courseID}
	if err := c.acquire(key); err != nil {
		return err
	}
	defer c.release(key)

	course, err := c.gw.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	c.cache.PutCourse(course)
	if moduleIndex >= course.ModuleCount {
		return educhain.NewError(educhain.ErrCodeValidation, "module index out of range")
	}

	progress, err := c.gw.GetProgress(ctx, courseID, session.Account)
	if err != nil {
		return err
	}
	if !progress.Enrolled {
		return educhain.NewError(educhain.ErrCodeNotEligible, "not enrolled in this course")
	}
	// Modules complete in order; an index below the confirmed count was
	// already applied on the ledger.
	if moduleIndex < progress.CompletedModules {
		c.cache.SetConfirmed(key, progress)
		return nil
	}

	provisional := progress
	provisional.CompletedModules++
	provisional.Passed = provisional.CompletedModules == course.ModuleCount
	token := c.cache.StageProvisional(key, provisional)

	err = c.gw.CompleteModule(ctx, session, courseID, moduleIndex)
	if err != nil && !educhain.Recoverable(err) {
		c.cache.Rollback(key, token)
		return err
	}

	return c.confirmProgress(ctx, key, session.Account, courseID)
}

// IssueCertificate moves a Passed pair to Certified. Progress is re-read
// immediately before submission; a pre-existing certificate resolves to
// its ID instead of a duplicate-issue round trip.
func (c *Coordinator) IssueCertificate(ctx context.Context, session wallet.Session, courseID educhain.CourseID) (educhain.CertificateID, error) {
	key := viewcache.Key{Student: session.Account, Course: courseID}
	if err := c.acquire(key); err != nil {
		return 0, err
	}
	defer c.release(key)

	progress, err := c.gw.GetProgress(ctx, courseID, session.Account)
	if err != nil {
		return 0, err
	}
	c.cache.SetConfirmed(key, progress)
	if !progress.Passed {
		return 0, educhain.NewError(educhain.ErrCodeNotEligible,
			"all modules must be completed before a certificate can be issued")
	}

	if cert, ok, err := c.findCertificate(ctx, session.Account, courseID); err == nil && ok {
		return cert.ID, nil
	}

	id, err := c.gw.IssueCertificate(ctx, session, courseID)
	if err != nil {
		if educhain.IsCode(err, educhain.ErrCodeAlreadyIssued) {
			// Redirect to the existing certificate rather than failing.
			if cert, ok, lookupErr := c.findCertificate(ctx, session.Account, courseID); lookupErr == nil && ok {
				return cert.ID, nil
			}
		}
		return 0, err
	}

	if certs, lookupErr := c.gw.GetCertificatesByStudent(ctx, session.Account); lookupErr == nil {
		for _, cert := range certs {
			if cert.ID == id {
				c.cache.PutCertificate(cert)
			}
		}
	}
	return id, nil
}

// Progress returns fresh confirmed progress for a pair, updating the cache.
func (c *Coordinator) Progress(ctx context.Context, student educhain.AccountID, courseID educhain.CourseID) (educhain.Progress, error) {
	key := viewcache.Key{Student: student, Course: courseID}
	progress, err := c.gw.GetProgress(ctx, courseID, student)
	if err != nil {
		return educhain.Progress{}, err
	}
	c.cache.SetConfirmed(key, progress)
	return progress, nil
}

// State derives the lifecycle state for a pair from fresh ledger reads.
func (c *Coordinator) State(ctx context.Context, student educhain.AccountID, courseID educhain.CourseID) (educhain.LifecycleState, error) {
	progress, err := c.Progress(ctx, student, courseID)
	if err != nil {
		return "", err
	}
	_, certified, err := c.findCertificate(ctx, student, courseID)
	if err != nil {
		return "", err
	}
	return educhain.StateOf(progress, certified), nil
}

// confirmProgress re-reads progress after a confirmed write (or a
// recoverable already-done outcome) and promotes it to the confirmed layer.
func (c *Coordinator) confirmProgress(ctx context.Context, key viewcache.Key, student educhain.AccountID, courseID educhain.CourseID) error {
	progress, err := c.gw.GetProgress(ctx, courseID, student)
	if err != nil {
		// The write confirmed; only the follow-up read failed. Drop the
		// provisional entry and let the next interaction re-read.
		c.cache.Invalidate(key)
		return err
	}
	c.cache.SetConfirmed(key, progress)
	return nil
}

func (c *Coordinator) findCertificate(ctx context.Context, student educhain.AccountID, courseID educhain.CourseID) (*educhain.Certificate, bool, error) {
	certs, err := c.gw.GetCertificatesByStudent(ctx, student)
	if err != nil {
		return nil, false, err
	}
	for _, cert := range certs {
		if cert.CourseID == courseID && cert.Issued {
			c.cache.PutCertificate(cert)
			return cert, true, nil
		}
	}
	return nil, false, nil
}
