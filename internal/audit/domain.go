package audit

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates privileged actions that produce an audit record.
type EventType string

const (
	EventOrderPlacement      EventType = "POS_ORDER_PLACEMENT"
	EventOrderStatusChange   EventType = "POS_ORDER_STATUS_CHANGE"
	EventInventoryAdjustment EventType = "INVENTORY_ADJUSTMENT"
	EventInventoryTransfer   EventType = "INVENTORY_TRANSFER"
	EventInventoryPurchase   EventType = "INVENTORY_PURCHASE"
	EventInventoryWaste      EventType = "INVENTORY_WASTE"
	EventMenuItemCreate      EventType = "MENU_ITEM_CREATE"
	EventMenuItemUpdate      EventType = "MENU_ITEM_UPDATE"
	EventPriceChange         EventType = "PRICE_CHANGE"
	EventCustomerCreate      EventType = "CUSTOMER_CREATE"
	EventUserCreate          EventType = "USER_CREATE"
	EventLedgerPosting       EventType = "LEDGER_POSTING"
	EventPeriodClose         EventType = "PERIOD_CLOSE"
	EventAssistantExecution  EventType = "AI_ACTION_EXECUTION"
)

// Payload captures the before/after state and the operator's reason.
type Payload struct {
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// Record is an immutable, signed audit entry.
type Record struct {
	ID        uuid.UUID
	At        time.Time
	EventType EventType
	UserID    int64
	UserName  string
	Role      string
	BranchID  int64
	DeviceID  string
	Payload   Payload
	Meta      map[string]any
	Signature string
}

var (
	// ErrNoActor indicates the context carried no authenticated actor.
	ErrNoActor = errors.New("audit: no actor in context")
	// ErrTampered indicates a stored record whose signature does not verify.
	ErrTampered = errors.New("audit: record signature mismatch")
)

// Marshal renders v as JSON for a payload side, ignoring failures on
// unserialisable values so audit never blocks the mutation it describes.
func Marshal(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
