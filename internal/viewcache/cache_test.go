package viewcache

import (
	"context"
	"errors"
	"testing"

	"github.com/educhain-network/educhain-go/internal/educhain"
	"github.com/educhain-network/educhain-go/pkg/logger"
)

var (
	alice = educhain.AccountID("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = educhain.AccountID("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func TestSnapshotPrefersProvisional(t *testing.T) {
	c := New()
	key := Key{Student: alice, Course: 1}

	if _, known, _ := c.Snapshot(key); known {
		t.Fatal("empty cache must report unknown")
	}

	c.SetConfirmed(key, educhain.Progress{Enrolled: true, CompletedModules: 1})
	c.StageProvisional(key, educhain.Progress{Enrolled: true, CompletedModules: 2})

	progress, known, provisional := c.Snapshot(key)
	if !known || !provisional {
		t.Fatalf("known=%v provisional=%v", known, provisional)
	}
	if progress.CompletedModules != 2 {
		t.Fatalf("CompletedModules = %d, want provisional 2", progress.CompletedModules)
	}
}

func TestSetConfirmedSupersedesProvisional(t *testing.T) {
	c := New()
	key := Key{Student: alice, Course: 1}

	token := c.StageProvisional(key, educhain.Progress{Enrolled: true})
	c.SetConfirmed(key, educhain.Progress{Enrolled: true, CompletedModules: 1})

	progress, known, provisional := c.Snapshot(key)
	if !known || provisional {
		t.Fatalf("known=%v provisional=%v, want confirmed", known, provisional)
	}
	if progress.CompletedModules != 1 {
		t.Fatalf("CompletedModules = %d", progress.CompletedModules)
	}

	// A late rollback of the superseded entry must not disturb the
	// confirmed value.
	c.Rollback(key, token)
	if _, known, _ := c.Snapshot(key); !known {
		t.Fatal("rollback of a resolved token must be a no-op")
	}
}

func TestRollbackRestoresConfirmed(t *testing.T) {
	c := New()
	key := Key{Student: alice, Course: 1}

	confirmed := educhain.Progress{Enrolled: true, CompletedModules: 1}
	c.SetConfirmed(key, confirmed)
	token := c.StageProvisional(key, educhain.Progress{Enrolled: true, CompletedModules: 2})
	c.Rollback(key, token)

	progress, known, provisional := c.Snapshot(key)
	if !known || provisional {
		t.Fatalf("known=%v provisional=%v", known, provisional)
	}
	if progress != confirmed {
		t.Fatalf("progress = %+v, want %+v", progress, confirmed)
	}
}

func TestRollbackIgnoresStaleToken(t *testing.T) {
	c := New()
	key := Key{Student: alice, Course: 1}

	stale := c.StageProvisional(key, educhain.Progress{Enrolled: true})
	fresh := c.StageProvisional(key, educhain.Progress{Enrolled: true, CompletedModules: 1})

	c.Rollback(key, stale)
	progress, known, provisional := c.Snapshot(key)
	if !known || !provisional || progress.CompletedModules != 1 {
		t.Fatalf("stale rollback must not discard a newer entry: %+v known=%v provisional=%v",
			progress, known, provisional)
	}

	c.Rollback(key, fresh)
	if _, known, _ := c.Snapshot(key); known {
		t.Fatal("fresh rollback must clear the entry")
	}
}

func TestReconcileConfirmedPreservesProvisional(t *testing.T) {
	c := New()
	key := Key{Student: alice, Course: 1}

	c.SetConfirmed(key, educhain.Progress{Enrolled: true})
	c.StageProvisional(key, educhain.Progress{Enrolled: true, CompletedModules: 1})

	c.ReconcileConfirmed(key, educhain.Progress{Enrolled: true, CompletedModules: 1, Passed: false})

	_, _, provisional := c.Snapshot(key)
	if !provisional {
		t.Fatal("background reconciliation must not discard staged provisional state")
	}
	confirmed, ok := c.Confirmed(key)
	if !ok || confirmed.CompletedModules != 1 {
		t.Fatalf("confirmed layer not updated: %+v ok=%v", confirmed, ok)
	}
}

func TestInvalidateStudent(t *testing.T) {
	c := New()
	aliceKey := Key{Student: alice, Course: 1}
	bobKey := Key{Student: bob, Course: 1}

	c.SetConfirmed(aliceKey, educhain.Progress{Enrolled: true})
	c.SetConfirmed(bobKey, educhain.Progress{Enrolled: true})
	c.PutCertificate(&educhain.Certificate{ID: 1, Student: alice, CourseID: 1, Issued: true})

	c.InvalidateStudent(alice)

	if _, known, _ := c.Snapshot(aliceKey); known {
		t.Fatal("alice's progress must be gone")
	}
	if _, ok := c.Certificate(aliceKey); ok {
		t.Fatal("alice's certificate must be gone")
	}
	if _, known, _ := c.Snapshot(bobKey); !known {
		t.Fatal("bob's progress must survive")
	}
}

func TestCourseAndCertificateLookup(t *testing.T) {
	c := New()

	c.PutCourse(&educhain.Course{ID: 4, Title: "Distributed Systems"})
	c.PutCourse(nil)

	course, ok := c.Course(4)
	if !ok || course.Title != "Distributed Systems" {
		t.Fatalf("course = %+v ok=%v", course, ok)
	}
	if _, ok := c.Course(5); ok {
		t.Fatal("unknown course must miss")
	}

	c.PutCertificate(&educhain.Certificate{ID: 2, Student: alice, CourseID: 4, Issued: true})
	cert, ok := c.Certificate(Key{Student: alice, Course: 4})
	if !ok || cert.ID != 2 {
		t.Fatalf("cert = %+v ok=%v", cert, ok)
	}
}

// fakeReader scripts per-key progress for refresher tests.
type fakeReader struct {
	progress map[Key]educhain.Progress
	errs     map[Key]error
}

func (f *fakeReader) GetProgress(ctx context.Context, courseID educhain.CourseID, student educhain.AccountID) (educhain.Progress, error) {
	key := Key{Student: student, Course: courseID}
	if err, ok := f.errs[key]; ok {
		return educhain.Progress{}, err
	}
	return f.progress[key], nil
}

func TestRefresherReconciles(t *testing.T) {
	c := New()
	aliceKey := Key{Student: alice, Course: 1}
	bobKey := Key{Student: bob, Course: 1}

	c.SetConfirmed(aliceKey, educhain.Progress{Enrolled: true})
	c.SetConfirmed(bobKey, educhain.Progress{Enrolled: true})
	c.StageProvisional(aliceKey, educhain.Progress{Enrolled: true, CompletedModules: 1})

	reader := &fakeReader{
		progress: map[Key]educhain.Progress{
			aliceKey: {Enrolled: true, CompletedModules: 1},
		},
		errs: map[Key]error{
			bobKey: errors.New("node down"),
		},
	}

	r, err := NewRefresher(c, reader, "@every 1h", logger.Discard())
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}
	r.RefreshNow()

	confirmed, _ := c.Confirmed(aliceKey)
	if confirmed.CompletedModules != 1 {
		t.Fatalf("alice's confirmed progress not refreshed: %+v", confirmed)
	}
	if _, _, provisional := c.Snapshot(aliceKey); !provisional {
		t.Fatal("refresh must leave alice's provisional entry staged")
	}

	// The failed read leaves the stale value rather than dropping it.
	if stale, ok := c.Confirmed(bobKey); !ok || !stale.Enrolled {
		t.Fatalf("bob's stale value must survive a failed refresh: %+v ok=%v", stale, ok)
	}
}

func TestRefresherRejectsBadSchedule(t *testing.T) {
	if _, err := NewRefresher(New(), &fakeReader{}, "not a schedule", logger.Discard()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}
