package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Offline action types
const (
	ActionTypeDistributePayment = "DISTRIBUTE_PAYMENT"
)

// Offline action states
const (
	ActionStatusQueued     = "queued"
	ActionStatusAttempting = "attempting"
	ActionStatusApplied    = "applied"
	ActionStatusAbandoned  = "abandoned"
)

// DefaultMaxRetries is how many times a queued action is retried after its
// first failed attempt before it is abandoned.
const DefaultMaxRetries = 3

// DistributePaymentPayload is the typed payload of a DISTRIBUTE_PAYMENT
// action. Replay recomputes the distribution from these inputs against the
// installment state at replay time; ComputedDetails keeps what the collector
// saw at entry time for audit purposes only and is never re-applied.
type DistributePaymentPayload struct {
	ClientDocument   string               `json:"client_document"`
	Amount           float64              `json:"amount"`
	Mode             string               `json:"mode"`
	ManualOverrides  map[string]float64   `json:"manual_overrides,omitempty"`
	CollectorID      uint                 `json:"collector_id"`
	PaymentMethod    string               `json:"payment_method"`
	Notes            string               `json:"notes,omitempty"`
	PaymentDate      time.Time            `json:"payment_date"`
	AllowOverpayment bool                 `json:"allow_overpayment,omitempty"`
	ComputedDetails  []DistributionDetail `json:"computed_details,omitempty"`
}

// OfflineAction is one entry of the durable local queue. Payload is the
// serialized typed payload for the action's Type; use the typed accessor
// instead of decoding it directly.
type OfflineAction struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Type       string    `gorm:"not null;index" json:"type"`
	Status     string    `gorm:"default:queued;not null;index" json:"status"`
	Payload    []byte    `gorm:"not null" json:"-"`
	RetryCount int       `gorm:"default:0" json:"retry_count"`
	MaxRetries int       `gorm:"default:3" json:"max_retries"`
	LastError  string    `gorm:"type:text" json:"last_error,omitempty"`
	EnqueuedAt time.Time `gorm:"index" json:"enqueued_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for OfflineAction
func (OfflineAction) TableName() string {
	return "offline_actions"
}

// NewDistributePaymentAction builds a queued action carrying the payload
func NewDistributePaymentAction(payload DistributePaymentPayload) (*OfflineAction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return &OfflineAction{
		ID:         uuid.NewString(),
		Type:       ActionTypeDistributePayment,
		Status:     ActionStatusQueued,
		Payload:    raw,
		MaxRetries: DefaultMaxRetries,
		EnqueuedAt: time.Now(),
	}, nil
}

// DistributePayment decodes the payload of a DISTRIBUTE_PAYMENT action.
// Returns an error for any other action type so callers can match
// exhaustively on Type.
func (a *OfflineAction) DistributePayment() (*DistributePaymentPayload, error) {
	if a.Type != ActionTypeDistributePayment {
		return nil, fmt.Errorf("action %s has type %s, not %s", a.ID, a.Type, ActionTypeDistributePayment)
	}
	var payload DistributePaymentPayload
	if err := json.Unmarshal(a.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload of action %s: %w", a.ID, err)
	}
	return &payload, nil
}

// RetriesExhausted returns true once the action has failed more times than
// its retry budget allows.
func (a *OfflineAction) RetriesExhausted() bool {
	return a.RetryCount > a.MaxRetries
}

// OfflineActionResponse is the JSON response format for queue entries
type OfflineActionResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ToResponse converts OfflineAction to OfflineActionResponse
func (a *OfflineAction) ToResponse() OfflineActionResponse {
	return OfflineActionResponse{
		ID:         a.ID,
		Type:       a.Type,
		Status:     a.Status,
		RetryCount: a.RetryCount,
		MaxRetries: a.MaxRetries,
		LastError:  a.LastError,
		EnqueuedAt: a.EnqueuedAt,
	}
}
