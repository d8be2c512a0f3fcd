package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/palmsestate/palms/internal/engine/realtime"
)

// DefaultDebounce is the quiet window change events must clear before a
// refresh fires.
const DefaultDebounce = time.Second

// WatchedTables are the collections whose changes invalidate the
// dashboard.
var WatchedTables = []string{"applications", "saved_properties", "payment_requests"}

// SubscriptionManager keeps one change-notification channel per watched
// table open for the current user, coalescing bursts of events into a
// single forced dashboard refresh. Exactly one channel set exists at a
// time: the previous user's set is fully torn down before a new one
// opens.
type SubscriptionManager struct {
	client    realtime.Client
	dashboard *DashboardService
	logger    *slog.Logger
	debounce  time.Duration

	mu      sync.Mutex
	userID  string
	handles []realtime.Handle
	timer   *time.Timer
}

func NewSubscriptionManager(client realtime.Client, dashboard *DashboardService, logger *slog.Logger, debounce time.Duration) *SubscriptionManager {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &SubscriptionManager{
		client:    client,
		dashboard: dashboard,
		logger:    logger,
		debounce:  debounce,
	}
}

// SetUser switches subscriptions to a new user. The old set is always
// torn down first; an empty user id leaves everything closed.
func (m *SubscriptionManager) SetUser(ctx context.Context, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.userID == userID {
		return
	}

	m.teardownLocked()
	m.userID = userID
	if userID == "" {
		return
	}

	for _, table := range WatchedTables {
		name := realtime.UserChannel(table, userID)
		handle, err := m.client.Channel(name).
			On(realtime.EventAll, func(msg realtime.Message) {
				m.scheduleRefresh(userID)
			}).
			Subscribe(ctx)
		if err != nil {
			m.logger.Warn("realtime subscribe failed",
				slog.String("channel", name), slog.String("error", err.Error()))
			continue
		}
		m.handles = append(m.handles, handle)
	}

	m.logger.Info("realtime subscriptions opened",
		slog.String("user_id", userID), slog.Int("channels", len(m.handles)))
}

// Close tears down the active channel set and any pending debounce
// timer.
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	m.userID = ""
}

// scheduleRefresh (re)arms the debounce timer: a new event within the
// window resets it, so a burst produces one refresh timed from the last
// event.
func (m *SubscriptionManager) scheduleRefresh(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.userID != userID {
		// Event raced a user switch; the channel is already doomed.
		return
	}

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounce, func() {
		m.mu.Lock()
		stale := m.userID != userID
		m.timer = nil
		m.mu.Unlock()
		if stale {
			return
		}
		m.dashboard.Fetch(context.Background(), true)
	})
}

// teardownLocked unsubscribes every channel and clears the pending
// timer. Callers hold m.mu.
func (m *SubscriptionManager) teardownLocked() {
	for _, h := range m.handles {
		if err := h.Unsubscribe(); err != nil {
			m.logger.Warn("realtime unsubscribe failed", slog.String("error", err.Error()))
		}
	}
	m.handles = nil

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
