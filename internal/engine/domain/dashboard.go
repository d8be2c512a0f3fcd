package domain

import "time"

// Application statuses as stored in the applications collection.
const (
	ApplicationPending  = "pending"
	ApplicationApproved = "approved"
	ApplicationRejected = "rejected"
)

// Application is a rental application submitted by a user.
type Application struct {
	ID         string
	UserID     string
	PropertyID string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SavedProperty is a bookmark of a property listing by a user.
type SavedProperty struct {
	ID         string
	UserID     string
	PropertyID string
	CreatedAt  time.Time
}

// PaymentRequest is a payment demand raised against a user, due at a
// point in time.
type PaymentRequest struct {
	ID        string
	UserID    string
	Amount    int64 // cents
	DueAt     time.Time
	Paid      bool
	CreatedAt time.Time
}

// DashboardStats is the derived aggregate view for the signed-in user.
// It is always recomputed in full and replaced atomically; individual
// fields are never patched in place.
type DashboardStats struct {
	TotalApplications    int
	PendingApplications  int
	ApprovedApplications int
	SavedProperties      int
	UpcomingPayments     int
}
