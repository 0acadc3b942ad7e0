package inventory

import (
	"errors"
	"time"
)

// Domain errors for the inventory package.
var (
	// ErrItemNotFound is returned when a catalog item ID does not exist.
	ErrItemNotFound = errors.New("inventory: catalog item not found")

	// ErrItemExists is returned when creating an item whose ID is taken.
	ErrItemExists = errors.New("inventory: catalog item already exists")

	// ErrInvalidQuantity is returned for negative stock values.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
)

// Item is the stock record of a catalog product.
type Item struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Quantity          int        `json:"quantity"`
	LowStockThreshold int        `json:"low_stock_threshold"`
	UnitWeight        float64    `json:"unit_weight"`
	StockUpdatedAt    *time.Time `json:"stock_updated_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// MovementSource names the signal that changed stock.
type MovementSource string

// Movement sources.
const (
	SourceWeight MovementSource = "weight"
	SourceRFID   MovementSource = "rfid"

	// SourceReversal undoes an earlier movement whose reading was
	// rejected after reconciliation.
	SourceReversal MovementSource = "reversal"
)

// StockMovement is an append-only ledger entry for one applied stock change.
type StockMovement struct {
	ID        string         `json:"id"`
	ItemID    string         `json:"item_id"`
	ReadingID string         `json:"reading_id,omitempty"`
	DeviceID  string         `json:"device_id,omitempty"`
	Source    MovementSource `json:"source"`
	Previous  int            `json:"previous"`
	Current   int            `json:"current"`
	CreatedAt time.Time      `json:"created_at"`
}

// Delta is the signed change the movement applied.
func (m StockMovement) Delta() int {
	return m.Current - m.Previous
}

// MovementFilter controls which movements to return.
type MovementFilter struct {
	ItemID string // required
	Limit  int    // default 50, max 200
	Offset int    // pagination offset
}

// MovementList contains paginated movement results.
type MovementList struct {
	Movements []StockMovement `json:"movements"`
	Total     int             `json:"total"`
	Limit     int             `json:"limit"`
	Offset    int             `json:"offset"`
}
