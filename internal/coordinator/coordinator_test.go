package coordinator

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educhain-network/educhain-go/internal/educhain"
	"github.com/educhain-network/educhain-go/internal/viewcache"
	"github.com/educhain-network/educhain-go/internal/wallet"
	"github.com/educhain-network/educhain-go/pkg/logger"
)

const (
	student = educhain.AccountID("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	teacher = educhain.AccountID("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
)

// fakeGateway scripts ledger responses for a single course scenario.
type fakeGateway struct {
	mu sync.Mutex

	course   *educhain.Course
	progress educhain.Progress
	certs    []*educhain.Certificate

	createID  educhain.CourseID
	createErr error
	enrollErr error

	completeErr error
	issueID     educhain.CertificateID
	issueErr    error

	// hideCertsOnce makes the first certificate listing come back empty,
	// simulating a record that lands between the listing and the write.
	hideCertsOnce bool

	enrollCalls   int
	completeCalls int
	issueCalls    int

	// enrollStarted/enrollRelease let a test hold an enrollment open to
	// exercise the in-flight guard.
	enrollStarted chan struct{}
	enrollRelease chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		course: &educhain.Course{
			ID:          1,
			Teacher:     teacher,
			Title:       "Distributed Systems",
			Price:       big.NewInt(50),
			ModuleCount: 2,
		},
		createID: 1,
		issueID:  7,
	}
}

func (f *fakeGateway) CreateCourse(ctx context.Context, s wallet.Session, d educhain.CourseDraft) (educhain.CourseID, error) {
	return f.createID, f.createErr
}

func (f *fakeGateway) Enroll(ctx context.Context, s wallet.Session, id educhain.CourseID, payment *big.Int) error {
	f.mu.Lock()
	f.enrollCalls++
	started, release := f.enrollStarted, f.enrollRelease
	err := f.enrollErr
	f.mu.Unlock()

	if started != nil {
		close(started)
		<-release
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.progress.Enrolled = true
	f.mu.Unlock()
	return nil
}

func (f *fakeGateway) CompleteModule(ctx context.Context, s wallet.Session, id educhain.CourseID, idx uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	if f.completeErr != nil {
		return f.completeErr
	}
	f.progress.CompletedModules++
	f.progress.Passed = f.progress.CompletedModules == f.course.ModuleCount
	return nil
}

func (f *fakeGateway) IssueCertificate(ctx context.Context, s wallet.Session, id educhain.CourseID) (educhain.CertificateID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issueCalls++
	if f.issueErr != nil {
		return 0, f.issueErr
	}
	f.certs = append(f.certs, &educhain.Certificate{
		ID: f.issueID, Student: s.Account, CourseID: id, Issued: true,
	})
	return f.issueID, nil
}

func (f *fakeGateway) GetCourse(ctx context.Context, id educhain.CourseID) (*educhain.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.course, nil
}

func (f *fakeGateway) GetProgress(ctx context.Context, id educhain.CourseID, acct educhain.AccountID) (educhain.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress, nil
}

func (f *fakeGateway) GetCertificatesByStudent(ctx context.Context, acct educhain.AccountID) ([]*educhain.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hideCertsOnce {
		f.hideCertsOnce = false
		return nil, nil
	}
	return append([]*educhain.Certificate(nil), f.certs...), nil
}

func session() wallet.Session {
	return wallet.Session{Account: student, ChainID: 1337}
}

func newTestCoordinator(gw Gateway) *Coordinator {
	return New(gw, viewcache.New(), logger.Discard())
}

func TestEnroll(t *testing.T) {
	gw := newFakeGateway()
	c := newTestCoordinator(gw)

	require.NoError(t, c.Enroll(context.Background(), session(), 1))
	assert.Equal(t, 1, gw.enrollCalls)

	key := viewcache.Key{Student: student, Course: 1}
	progress, known, provisional := c.Cache().Snapshot(key)
	require.True(t, known)
	assert.False(t, provisional, "progress must be confirmed after the follow-up read")
	assert.True(t, progress.Enrolled)
}

func TestEnrollAlreadyEnrolledShortCircuits(t *testing.T) {
	gw := newFakeGateway()
	gw.progress = educhain.Progress{Enrolled: true, CompletedModules: 1}
	c := newTestCoordinator(gw)

	require.NoError(t, c.Enroll(context.Background(), session(), 1))
	assert.Zero(t, gw.enrollCalls, "an enrolled pair must not submit again")
}

func TestEnrollRecoverableRejection(t *testing.T) {
	// Another device enrolled between the read and the submission. The
	// ledger's rejection confirms the goal state, so the workflow succeeds.
	gw := newFakeGateway()
	gw.enrollErr = educhain.NewError(educhain.ErrCodeAlreadyEnrolled, "already enrolled")
	c := newTestCoordinator(gw)

	err := c.Enroll(context.Background(), session(), 1)
	require.NoError(t, err)
}

func TestEnrollFailureRollsBackProvisional(t *testing.T) {
	gw := newFakeGateway()
	gw.enrollErr = educhain.NewError(educhain.ErrCodeConfirmationTimeout, "timed out")
	c := newTestCoordinator(gw)

	err := c.Enroll(context.Background(), session(), 1)
	require.Error(t, err)
	assert.Equal(t, educhain.ErrCodeConfirmationTimeout, educhain.CodeOf(err))

	key := viewcache.Key{Student: student, Course: 1}
	_, _, provisional := c.Cache().Snapshot(key)
	assert.False(t, provisional, "failed write must not leave provisional state behind")
}

func TestConcurrentWritesSerialized(t *testing.T) {
	gw := newFakeGateway()
	gw.enrollStarted = make(chan struct{})
	gw.enrollRelease = make(chan struct{})
	c := newTestCoordinator(gw)

	first := make(chan error, 1)
	go func() { first <- c.Enroll(context.Background(), session(), 1) }()

	select {
	case <-gw.enrollStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("first enrollment never reached the gateway")
	}

	// Second write for the same pair while the first is in flight.
	err := c.Enroll(context.Background(), session(), 1)
	assert.Equal(t, educhain.ErrCodeOperationInProgress, educhain.CodeOf(err))

	close(gw.enrollRelease)
	require.NoError(t, <-first)
	assert.Equal(t, 1, gw.enrollCalls, "exactly one submission must reach the ledger")

	// The slot frees up once the first write settles.
	gw.enrollStarted = nil
	require.NoError(t, c.Enroll(context.Background(), session(), 1))
}

func TestCompleteModule(t *testing.T) {
	gw := newFakeGateway()
	gw.progress = educhain.Progress{Enrolled: true}
	c := newTestCoordinator(gw)

	require.NoError(t, c.CompleteModule(context.Background(), session(), 1, 0))
	assert.Equal(t, 1, gw.completeCalls)

	require.NoError(t, c.CompleteModule(context.Background(), session(), 1, 1))
	progress, err := c.Progress(context.Background(), student, 1)
	require.NoError(t, err)
	assert.True(t, progress.Passed, "completing the final module passes the course")
}

func TestCompleteModuleIdempotent(t *testing.T) {
	gw := newFakeGateway()
	gw.progress = educhain.Progress{Enrolled: true, CompletedModules: 1}
	c := newTestCoordinator(gw)

	// Index 0 is already counted; a repeat is a local no-op success.
	require.NoError(t, c.CompleteModule(context.Background(), session(), 1, 0))
	assert.Zero(t, gw.completeCalls)
}

func TestCompleteModuleRequiresEnrollment(t *testing.T) {
	gw := newFakeGateway()
	c := newTestCoordinator(gw)

	err := c.CompleteModule(context.Background(), session(), 1, 0)
	assert.Equal(t, educhain.ErrCodeNotEligible, educhain.CodeOf(err))
	assert.Zero(t, gw.completeCalls)
}

func TestCompleteModuleIndexOutOfRange(t *testing.T) {
	gw := newFakeGateway()
	gw.progress = educhain.Progress{Enrolled: true}
	c := newTestCoordinator(gw)

	err := c.CompleteModule(context.Background(), session(), 1, 2)
	assert.Equal(t, educhain.ErrCodeValidation, educhain.CodeOf(err))
}

func TestIssueCertificate(t *testing.T) {
	gw := newFakeGateway()
	gw.progress = educhain.Progress{Enrolled: true, CompletedModules: 2, Passed: true}
	c := newTestCoordinator(gw)

	id, err := c.IssueCertificate(context.Background(), session(), 1)
	require.NoError(t, err)
	assert.Equal(t, educhain.CertificateID(7), id)
	assert.Equal(t, 1, gw.issueCalls)
}

func TestIssueCertificateNotPassed(t *testing.T) {
	gw := newFakeGateway()
	gw.progress = educhain.Progress{Enrolled: true, CompletedModules: 1}
	c := newTestCoordinator(gw)

	_, err := c.IssueCertificate(context.Background(), session(), 1)
	assert.Equal(t, educhain.ErrCodeNotEligible, educhain.CodeOf(err))
	assert.Zero(t, gw.issueCalls)
}

func TestIssueCertificateExistingShortCircuits(t *testing.T) {
	gw := newFakeGateway()
	gw.progress = educhain.Progress{Enrolled: true, CompletedModules: 2, Passed: true}
	gw.certs = []*educhain.Certificate{{ID: 3, Student: student, CourseID: 1, Issued: true}}
	c := newTestCoordinator(gw)

	id, err := c.IssueCertificate(context.Background(), session(), 1)
	require.NoError(t, err)
	assert.Equal(t, educhain.CertificateID(3), id)
	assert.Zero(t, gw.issueCalls)
}

func TestIssueCertificateAlreadyIssuedResolvesExisting(t *testing.T) {
	// The pre-submission listing misses the certificate (issued from
	// another device moments earlier), the ledger rejects the duplicate,
	// and the rejection resolves to the existing record.
	gw := newFakeGateway()
	gw.progress = educhain.Progress{Enrolled: true, CompletedModules: 2, Passed: true}
	gw.issueErr = educhain.NewError(educhain.ErrCodeAlreadyIssued, "certificate already issued")
	gw.certs = []*educhain.Certificate{{ID: 9, Student: student, CourseID: 1, Issued: true}}
	gw.hideCertsOnce = true
	c := newTestCoordinator(gw)

	id, err := c.IssueCertificate(context.Background(), session(), 1)
	require.NoError(t, err)
	assert.Equal(t, educhain.CertificateID(9), id)
	assert.Equal(t, 1, gw.issueCalls)
}

func TestCreateCourseCachesRecord(t *testing.T) {
	gw := newFakeGateway()
	c := newTestCoordinator(gw)

	id, err := c.CreateCourse(context.Background(), session(), educhain.CourseDraft{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, educhain.CourseID(1), id)

	course, ok := c.Cache().Course(1)
	require.True(t, ok)
	assert.Equal(t, "Distributed Systems", course.Title)
}

func TestStateDerivation(t *testing.T) {
	gw := newFakeGateway()
	c := newTestCoordinator(gw)
	ctx := context.Background()

	state, err := c.State(ctx, student, 1)
	require.NoError(t, err)
	assert.Equal(t, educhain.StateNotEnrolled, state)

	gw.progress = educhain.Progress{Enrolled: true}
	state, err = c.State(ctx, student, 1)
	require.NoError(t, err)
	assert.Equal(t, educhain.StateEnrolled, state)

	gw.progress = educhain.Progress{Enrolled: true, CompletedModules: 2, Passed: true}
	state, err = c.State(ctx, student, 1)
	require.NoError(t, err)
	assert.Equal(t, educhain.StatePassed, state)

	gw.certs = []*educhain.Certificate{{ID: 1, Student: student, CourseID: 1, Issued: true}}
	state, err = c.State(ctx, student, 1)
	require.NoError(t, err)
	assert.Equal(t, educhain.StateCertified, state)
}
