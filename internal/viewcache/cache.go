// Package viewcache holds derived, advisory copies of ledger state for UI
// consumption. Confirmed state comes only from confirmed gateway results;
// provisional state is per-request optimistic rendering that is promoted
// on confirmation or rolled back on failure. The two layers are never
// merged into one record.
package viewcache

import (
	"sync"

	"github.com/google/uuid"

	"github.com/educhain-network/educhain-go/internal/educhain"
)

// Key identifies a (student, course) pair.
type Key struct {
	Student educhain.AccountID
	Course  educhain.CourseID
}

type provisionalEntry struct {
	id       uuid.UUID
	progress educhain.Progress
}

// Cache is the local view cache. All values are advisory: writes are never
// gated on them.
type Cache struct {
	mu           sync.RWMutex
	confirmed    map[Key]educhain.Progress
	provisional  map[Key]provisionalEntry
	courses      map[educhain.CourseID]*educhain.Course
	certificates map[Key]*educhain.Certificate
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		confirmed:    make(map[Key]educhain.Progress),
		provisional:  make(map[Key]provisionalEntry),
		courses:      make(map[educhain.CourseID]*educhain.Course),
		certificates: make(map[Key]*educhain.Certificate),
	}
}

// SetConfirmed replaces the confirmed progress for a key and discards any
// provisional entry, which the confirmed value supersedes.
func (c *Cache) SetConfirmed(key Key, p educhain.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed[key] = p
	delete(c.provisional, key)
}

// ReconcileConfirmed updates the confirmed layer without touching a staged
// provisional entry. Used by background refresh, which must not discard
// optimistic feedback for an operation still in flight.
func (c *Cache) ReconcileConfirmed(key Key, p educhain.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed[key] = p
}

// Confirmed returns the last confirmed progress for a key.
func (c *Cache) Confirmed(key Key) (educhain.Progress, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.confirmed[key]
	return p, ok
}

// StageProvisional records optimistic progress for immediate UI feedback
// and returns a token identifying the staged entry. The entry resolves
// either through SetConfirmed (confirmation supersedes it) or through
// Rollback with the same token.
func (c *Cache) StageProvisional(key Key, p educhain.Progress) uuid.UUID {
	id := uuid.New()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provisional[key] = provisionalEntry{id: id, progress: p}
	return id
}

// Rollback discards a staged provisional entry. A token that no longer
// matches (the entry was superseded or already resolved) is a no-op.
func (c *Cache) Rollback(key Key, token uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.provisional[key]; ok && entry.id == token {
		delete(c.provisional, key)
	}
}

// Snapshot returns the progress to render for a key: the provisional value
// when one is staged, otherwise the confirmed value. The second return
// reports whether anything is known, the third whether the value is
// provisional.
func (c *Cache) Snapshot(key Key) (educhain.Progress, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.provisional[key]; ok {
		return entry.progress, true, true
	}
	p, ok := c.confirmed[key]
	return p, ok, false
}

// PutCourse records a known course.
func (c *Cache) PutCourse(course *educhain.Course) {
	if course == nil || course.ID == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.courses[course.ID] = course
}

// Course returns a known course by ID.
func (c *Cache) Course(id educhain.CourseID) (*educhain.Course, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	course, ok := c.courses[id]
	return course, ok
}

// PutCertificate records a known certificate for its (student, course) pair.
func (c *Cache) PutCertificate(cert *educhain.Certificate) {
	if cert == nil || cert.ID == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.certificates[Key{Student: cert.Student, Course: cert.CourseID}] = cert
}

// Certificate returns the known certificate for a key.
func (c *Cache) Certificate(key Key) (*educhain.Certificate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cert, ok := c.certificates[key]
	return cert, ok
}

// TrackedKeys lists every key with confirmed state, for background refresh.
func (c *Cache) TrackedKeys() []Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]Key, 0, len(c.confirmed))
	for key := range c.confirmed {
		keys = append(keys, key)
	}
	return keys
}

// Invalidate drops all state for a key, forcing the next read through to
// the ledger.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.confirmed, key)
	delete(c.provisional, key)
	delete(c.certificates, key)
}

// InvalidateStudent drops all state for a student across courses. Used
// when the wallet switches accounts.
func (c *Cache) InvalidateStudent(student educhain.AccountID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.confirmed {
		if key.Student.Equal(student) {
			delete(c.confirmed, key)
			delete(c.provisional, key)
			delete(c.certificates, key)
		}
	}
}
