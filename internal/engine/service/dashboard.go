package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
	"github.com/palmsestate/palms/internal/engine/store"
)

const (
	// DefaultFetchFloor is the minimum spacing between non-forced
	// dashboard fetches.
	DefaultFetchFloor = 5 * time.Second

	// RecentApplicationsLimit caps the recent-applications slice.
	RecentApplicationsLimit = 5
)

// DashboardSnapshot is the consumer-facing dashboard view. Stats and
// Recent are always replaced together.
type DashboardSnapshot struct {
	Stats   domain.DashboardStats
	Recent  []domain.Application
	Loading bool
}

// DashboardService recomputes the aggregate statistics for the
// signed-in user. Every refresh recomputes everything; results are
// never incrementally patched, so counts cannot drift from the
// underlying rows.
type DashboardService struct {
	store      store.Store
	logger     *slog.Logger
	fetchFloor time.Duration

	mu        sync.Mutex
	userID    string
	lastFetch time.Time // completion time of the last published fetch
	inFlight  bool
	loaded    bool
	stats     domain.DashboardStats
	recent    []domain.Application

	listeners    map[int]func(DashboardSnapshot)
	nextListener int
}

func NewDashboardService(st store.Store, logger *slog.Logger, fetchFloor time.Duration) *DashboardService {
	if logger == nil {
		logger = slog.Default()
	}
	if fetchFloor <= 0 {
		fetchFloor = DefaultFetchFloor
	}

	return &DashboardService{
		store:      st,
		logger:     logger,
		fetchFloor: fetchFloor,
		listeners:  make(map[int]func(DashboardSnapshot)),
	}
}

// SetUser switches the service to a new user (empty string for signed
// out), dropping the previous user's data and resetting the fetch
// floor. It does not fetch; callers trigger the initial Fetch.
func (s *DashboardService) SetUser(userID string) {
	s.mu.Lock()
	if s.userID == userID {
		s.mu.Unlock()
		return
	}
	s.userID = userID
	s.stats = domain.DashboardStats{}
	s.recent = nil
	s.loaded = false
	s.lastFetch = time.Time{}
	s.mu.Unlock()

	s.emit()
}

// Fetch recomputes the dashboard. It is a no-op when no user is set,
// when a fetch is already in flight, or when the last completed fetch
// landed under the floor ago, unless force is set. Every completed
// fetch, forced or not, restarts the floor window. Sub-queries fail
// independently: a failed slice contributes its zero value instead of
// aborting the aggregation.
func (s *DashboardService) Fetch(ctx context.Context, force bool) {
	s.mu.Lock()
	if s.userID == "" || s.inFlight {
		s.mu.Unlock()
		return
	}
	if !force && !s.lastFetch.IsZero() && time.Since(s.lastFetch) < s.fetchFloor {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	uid := s.userID
	s.mu.Unlock()

	stats, recent := s.aggregate(ctx, uid)

	s.mu.Lock()
	s.inFlight = false
	if s.userID != uid {
		// User switched while the queries were out; discard.
		s.mu.Unlock()
		return
	}
	s.stats = stats
	s.recent = recent
	s.loaded = true
	s.lastFetch = time.Now()
	s.mu.Unlock()

	s.emit()
}

// Refresh is the caller-triggered alias for a forced fetch.
func (s *DashboardService) Refresh(ctx context.Context) {
	s.Fetch(ctx, true)
}

// Snapshot returns the current dashboard view.
func (s *DashboardService) Snapshot() DashboardSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	recent := make([]domain.Application, len(s.recent))
	copy(recent, s.recent)

	return DashboardSnapshot{
		Stats:   s.stats,
		Recent:  recent,
		Loading: s.inFlight && !s.loaded,
	}
}

// OnChange registers a listener invoked after every published refresh.
// The returned function removes the listener.
func (s *DashboardService) OnChange(fn func(DashboardSnapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// aggregate issues the count/list queries concurrently and waits for
// all of them to settle.
func (s *DashboardService) aggregate(ctx context.Context, uid string) (domain.DashboardStats, []domain.Application) {
	var (
		wg     sync.WaitGroup
		stats  domain.DashboardStats
		recent []domain.Application
	)

	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				s.logger.Warn("dashboard query failed, using zero value",
					slog.String("query", name),
					slog.String("user_id", uid),
					slog.String("error", err.Error()))
			}
		}()
	}

	run("total_applications", func() error {
		n, err := s.store.Applications().CountApplicationsByUser(ctx, uid)
		if err == nil {
			stats.TotalApplications = n
		}
		return err
	})
	run("pending_applications", func() error {
		n, err := s.store.Applications().CountApplicationsByUserAndStatus(ctx, uid, domain.ApplicationPending)
		if err == nil {
			stats.PendingApplications = n
		}
		return err
	})
	run("approved_applications", func() error {
		n, err := s.store.Applications().CountApplicationsByUserAndStatus(ctx, uid, domain.ApplicationApproved)
		if err == nil {
			stats.ApprovedApplications = n
		}
		return err
	})
	run("saved_properties", func() error {
		n, err := s.store.SavedProperties().CountSavedPropertiesByUser(ctx, uid)
		if err == nil {
			stats.SavedProperties = n
		}
		return err
	})
	run("upcoming_payments", func() error {
		n, err := s.store.PaymentRequests().CountUpcomingPaymentsByUser(ctx, uid, time.Now().UTC())
		if err == nil {
			stats.UpcomingPayments = n
		}
		return err
	})
	run("recent_applications", func() error {
		apps, err := s.store.Applications().ListRecentApplicationsByUser(ctx, uid, RecentApplicationsLimit)
		if err == nil {
			recent = apps
		}
		return err
	})

	wg.Wait()
	return stats, recent
}

func (s *DashboardService) emit() {
	s.mu.Lock()
	fns := make([]func(DashboardSnapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}
