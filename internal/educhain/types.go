// Package educhain defines the domain model for the EduChain course ledger:
// courses, enrollments, per-student progress, and completion certificates.
// All four entities are owned by the ledger; values held here are derived
// copies, advisory until re-confirmed.
package educhain

import (
	"math/big"
	"regexp"
	"strings"
)

// CourseID identifies a course. Assigned by the ledger, positive, immutable.
type CourseID uint64

// CertificateID identifies a completion certificate. Assigned by the ledger.
type CertificateID uint64

// AccountID is a 0x-prefixed 20-byte hex ledger address.
type AccountID string

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Valid reports whether the account ID is a well-formed ledger address.
func (a AccountID) Valid() bool {
	return addressPattern.MatchString(string(a))
}

// Equal compares two account IDs case-insensitively (hex addresses may be
// checksummed or not depending on the wallet).
func (a AccountID) Equal(other AccountID) bool {
	return strings.EqualFold(string(a), string(other))
}

// Course is the immutable course record. Price is in base units (wei).
type Course struct {
	ID          CourseID
	Teacher     AccountID
	Title       string
	Description string
	Price       *big.Int
	ContentURL  string
	ModuleCount uint32
}

// CourseDraft is the client-side input to course creation. Price is a
// decimal string in whole-currency units; conversion to base units happens
// at the gateway boundary under the documented unit rule.
type CourseDraft struct {
	Title       string
	Description string
	Price       string
	ContentURL  string
	ModuleCount uint32
}

// Progress is the per-(student, course) ledger record. CompletedModules is
// monotonically non-decreasing and bounded by the course's module count;
// Passed holds iff every module is completed.
type Progress struct {
	Enrolled         bool
	CompletedModules uint32
	Passed           bool
}

// Certificate is the immutable completion certificate record. IssuedAt is
// the ledger timestamp in unix seconds.
type Certificate struct {
	ID       CertificateID
	Student  AccountID
	CourseID CourseID
	IssuedAt uint64
	Issued   bool
}

// LifecycleState is the derived workflow state for a (student, course) pair.
type LifecycleState string

const (
	StateNotEnrolled LifecycleState = "not_enrolled"
	StateEnrolled    LifecycleState = "enrolled"
	StatePassed      LifecycleState = "passed"
	StateCertified   LifecycleState = "certified"
)

// StateOf derives the lifecycle state from confirmed progress and an
// optional known certificate.
func StateOf(p Progress, certified bool) LifecycleState {
	switch {
	case certified:
		return StateCertified
	case p.Passed:
		return StatePassed
	case p.Enrolled:
		return StateEnrolled
	default:
		return StateNotEnrolled
	}
}
