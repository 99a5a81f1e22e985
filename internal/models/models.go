package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// Provider identifies a delivery marketplace
type Provider string

const (
	ProviderUberEats Provider = "uber_eats"
	ProviderDoorDash Provider = "doordash"
)

// Providers lists every marketplace the engine can talk to
var Providers = []Provider{ProviderUberEats, ProviderDoorDash}

// IsValid reports whether p is a known provider
func (p Provider) IsValid() bool {
	switch p {
	case ProviderUberEats, ProviderDoorDash:
		return true
	}
	return false
}

// Source returns the order source label stored on orders created from this provider
func (p Provider) Source() string {
	switch p {
	case ProviderUberEats:
		return "Uber Eats"
	case ProviderDoorDash:
		return "DoorDash"
	}
	return ""
}

// ProviderForSource maps an order source back to its provider.
// ok is false for manual and unknown sources.
func ProviderForSource(source string) (Provider, bool) {
	for _, p := range Providers {
		if p.Source() == source {
			return p, true
		}
	}
	return "", false
}

// ExternalSources returns the source labels of every provider
func ExternalSources() []string {
	sources := make([]string, 0, len(Providers))
	for _, p := range Providers {
		sources = append(sources, p.Source())
	}
	return sources
}

// Integration statuses
const (
	IntegrationStatusConnected    = "connected"
	IntegrationStatusDisconnected = "disconnected"
	IntegrationStatusError        = "error"
)

// Integration links a business to a provider store. Credentials are never
// loaded into this struct; they are read separately by the sync path.
type Integration struct {
	ID              string     `db:"id" json:"id"`
	BusinessID      string     `db:"business_id" json:"business_id"`
	Provider        Provider   `db:"provider" json:"provider"`
	ExternalStoreID string     `db:"external_store_id" json:"external_store_id"`
	Status          string     `db:"status" json:"status"`
	LastError       *string    `db:"last_error" json:"last_error,omitempty"`
	LastSyncAt      *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
	LastWebhookAt   *time.Time `db:"last_webhook_at" json:"last_webhook_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusCreated   = "created"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// IsValidOrderStatus reports whether s is a known order status
func IsValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusCreated, OrderStatusPreparing, OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Sync states
const (
	SyncStatePending = "pending"
	SyncStateOK      = "ok"
	SyncStateError   = "error"
)

// Order is the subset of the order row this engine reads and writes
type Order struct {
	ID              string          `db:"id" json:"id"`
	BusinessID      string          `db:"business_id" json:"business_id"`
	Source          string          `db:"source" json:"source"`
	ExternalOrderID string          `db:"external_order_id" json:"external_order_id"`
	Status          string          `db:"status" json:"status"`
	StatusVersion   int64           `db:"status_version" json:"status_version"`
	CancelReason    *string         `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CustomerName    string          `db:"customer_name" json:"customer_name"`
	CustomerPhone   string          `db:"customer_phone" json:"customer_phone"`
	Notes           string          `db:"notes" json:"notes"`
	Description     string          `db:"description" json:"description"`
	Subtotal        decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax             decimal.Decimal `db:"tax" json:"tax"`
	Total           decimal.Decimal `db:"total" json:"total"`
	Currency        string          `db:"currency" json:"currency"`
	SourceDetails   types.JSONText  `db:"source_details" json:"source_details,omitempty"`
	SyncState       string          `db:"sync_state" json:"sync_state"`
	RetryCount      int             `db:"retry_count" json:"retry_count"`
	LastSyncError   *string         `db:"last_sync_error" json:"last_sync_error,omitempty"`
	LastSyncedAt    *time.Time      `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// manualSources never sync to a provider
var manualSources = map[string]bool{
	"manual":   true,
	"phone":    true,
	"whatsapp": true,
	"walk-in":  true,
	"walk_in":  true,
}

// IsManualSource reports whether orders from source are exempt from provider sync
func IsManualSource(source string) bool {
	return manualSources[source]
}

// Provider returns the provider the order came from, if any
func (o *Order) Provider() (Provider, bool) {
	if IsManualSource(o.Source) {
		return "", false
	}
	return ProviderForSource(o.Source)
}

// OrderEvent is an append-only audit record
type OrderEvent struct {
	ID         string         `db:"id" json:"id"`
	OrderID    *string        `db:"order_id" json:"order_id,omitempty"`
	BusinessID string         `db:"business_id" json:"business_id"`
	EventType  string         `db:"event_type" json:"event_type"`
	Provider   *string        `db:"provider" json:"provider,omitempty"`
	Payload    types.JSONText `db:"payload" json:"payload"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Member roles
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// RetryCriteria selects orders eligible for another provider sync attempt
type RetryCriteria struct {
	Sources    []string
	MaxRetries int
	// UpdatedAfter bounds the retry window
	UpdatedAfter time.Time
	// StaleBefore reclaims orders stuck in pending since before this time
	StaleBefore time.Time
	Limit       int
}
