package sqlite

import (
	"database/sql"

	"github.com/palmsestate/palms/internal/engine/store"
)

// Tx wraps a *sql.Tx and exposes the same repositories scoped to that
// transaction.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

func (t *Tx) Identities() store.Identities           { return &identitiesRepo{db: t.tx} }
func (t *Tx) RefreshTokens() store.RefreshTokens     { return &refreshTokensRepo{db: t.tx} }
func (t *Tx) UserRoles() store.UserRoles             { return &userRolesRepo{db: t.tx} }
func (t *Tx) SystemSettings() store.SystemSettings   { return &systemSettingsRepo{db: t.tx} }
func (t *Tx) Profiles() store.Profiles               { return &profilesRepo{db: t.tx} }
func (t *Tx) Applications() store.Applications       { return &applicationsRepo{db: t.tx} }
func (t *Tx) SavedProperties() store.SavedProperties { return &savedPropertiesRepo{db: t.tx} }
func (t *Tx) PaymentRequests() store.PaymentRequests { return &paymentRequestsRepo{db: t.tx} }
