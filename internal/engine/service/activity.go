package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
	"github.com/palmsestate/palms/internal/engine/realtime"
	"github.com/palmsestate/palms/internal/engine/store"
	"github.com/palmsestate/palms/pkg/idx"
)

// ActivityService is the write side of the dashboard's source data:
// applications, saved properties and payment requests. Every successful
// write publishes a change notification on the owner's channel so
// live dashboards refresh.
type ActivityService struct {
	Store    store.Store
	Realtime realtime.Client
	Logger   *slog.Logger
}

func NewActivityService(st store.Store, rt realtime.Client, logger *slog.Logger) *ActivityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityService{Store: st, Realtime: rt, Logger: logger}
}

// SubmitApplication files a new rental application.
func (s *ActivityService) SubmitApplication(ctx context.Context, userID, propertyID string) (domain.Application, error) {
	now := time.Now().UTC()
	app := domain.Application{
		ID:         idx.New(),
		UserID:     userID,
		PropertyID: propertyID,
		Status:     domain.ApplicationPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.Store.Applications().CreateApplication(ctx, app); err != nil {
		return domain.Application{}, err
	}

	s.notify(ctx, "applications", userID, realtime.EventInsert, map[string]any{"id": app.ID})
	return app, nil
}

// SetApplicationStatus moves an application through its workflow.
func (s *ActivityService) SetApplicationStatus(ctx context.Context, app domain.Application, status string) error {
	if err := s.Store.Applications().UpdateApplicationStatus(ctx, app.ID, status); err != nil {
		return err
	}

	s.notify(ctx, "applications", app.UserID, realtime.EventUpdate, map[string]any{"id": app.ID, "status": status})
	return nil
}

// SaveProperty bookmarks a listing for a user. Saving the same listing
// twice is a no-op.
func (s *ActivityService) SaveProperty(ctx context.Context, userID, propertyID string) error {
	err := s.Store.SavedProperties().SaveProperty(ctx, domain.SavedProperty{
		ID:         idx.New(),
		UserID:     userID,
		PropertyID: propertyID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil
		}
		return err
	}

	s.notify(ctx, "saved_properties", userID, realtime.EventInsert, map[string]any{"property_id": propertyID})
	return nil
}

// RemoveSavedProperty drops a bookmark.
func (s *ActivityService) RemoveSavedProperty(ctx context.Context, userID, propertyID string) error {
	if err := s.Store.SavedProperties().RemoveSavedProperty(ctx, userID, propertyID); err != nil {
		return err
	}

	s.notify(ctx, "saved_properties", userID, realtime.EventDelete, map[string]any{"property_id": propertyID})
	return nil
}

// RaisePaymentRequest records a payment demand against a user.
func (s *ActivityService) RaisePaymentRequest(ctx context.Context, userID string, amount int64, dueAt time.Time) (domain.PaymentRequest, error) {
	p := domain.PaymentRequest{
		ID:        idx.New(),
		UserID:    userID,
		Amount:    amount,
		DueAt:     dueAt,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.Store.PaymentRequests().CreatePaymentRequest(ctx, p); err != nil {
		return domain.PaymentRequest{}, err
	}

	s.notify(ctx, "payment_requests", userID, realtime.EventInsert, map[string]any{"id": p.ID})
	return p, nil
}

// notify publishes a change event. Publication failures are logged, not
// returned: the write already happened and the dashboard will catch up
// on its next fetch.
func (s *ActivityService) notify(ctx context.Context, table, userID, event string, row map[string]any) {
	msg := realtime.Message{Event: event, Table: table, Row: row}
	if err := s.Realtime.Publish(ctx, realtime.UserChannel(table, userID), msg); err != nil {
		s.Logger.Warn("change notification failed",
			slog.String("table", table),
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}
}
