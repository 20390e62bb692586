package viewcache

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/educhain-network/educhain-go/internal/educhain"
	"github.com/educhain-network/educhain-go/pkg/logger"
)

// ProgressReader reads confirmed progress from the ledger. Implemented by
// the gateway.
type ProgressReader interface {
	GetProgress(ctx context.Context, courseID educhain.CourseID, student educhain.AccountID) (educhain.Progress, error)
}

// Refresher periodically re-reads progress for every tracked key so
// confirmed cache state does not go stale between user actions.
type Refresher struct {
	cache   *Cache
	reader  ProgressReader
	log     *logger.Logger
	cron    *cron.Cron
	timeout time.Duration
}

// NewRefresher creates a refresher on the given cron schedule spec
// (e.g. "@every 30s").
func NewRefresher(cache *Cache, reader ProgressReader, schedule string, log *logger.Logger) (*Refresher, error) {
	if log == nil {
		log = logger.NewDefault("viewcache")
	}
	r := &Refresher{
		cache:   cache,
		reader:  reader,
		log:     log,
		cron:    cron.New(),
		timeout: 30 * time.Second,
	}
	if _, err := r.cron.AddFunc(schedule, r.refreshAll); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins background refreshing.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop halts background refreshing and waits for a running refresh to end.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Refresher) refreshAll() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	for _, key := range r.cache.TrackedKeys() {
		progress, err := r.reader.GetProgress(ctx, key.Course, key.Student)
		if err != nil {
			// Leave the stale value in place; the next write path
			// re-reads the ledger anyway.
			r.log.WithError(err).WithFields(map[string]interface{}{
				"course_id": key.Course,
				"student":   string(key.Student),
			}).Debug("background refresh failed")
			continue
		}
		r.cache.ReconcileConfirmed(key, progress)
	}
}

// RefreshNow performs one synchronous refresh pass. Used by tests and by
// callers that want an immediate reconciliation.
func (r *Refresher) RefreshNow() {
	r.refreshAll()
}
