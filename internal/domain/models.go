package domain

import "time"

// DateLayout is the calendar-day format used for sale and ledger dates.
const DateLayout = "2006-01-02"

type SaleStatus string

const (
	SaleStatusPaid       SaleStatus = "PAID"
	SaleStatusUnpaid     SaleStatus = "UNPAID"
	SaleStatusDelivering SaleStatus = "DELIVERING"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusPaid, SaleStatusUnpaid, SaleStatusDelivering:
		return true
	}
	return false
}

type LedgerType string

const (
	LedgerIn  LedgerType = "in"
	LedgerOut LedgerType = "out"
)

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Address   string    `json:"address"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Unit        string `json:"unit"`
	Stock       int    `json:"stock"`
	UnitPrice   int64  `json:"unit_price"`
	CostPrice   int64  `json:"cost_price"`
	SafetyStock int    `json:"safety_stock"`
}

// IsLowStock is derived on read and never stored.
func (p Product) IsLowStock() bool {
	return p.Stock <= p.SafetyStock
}

type InventoryTransaction struct {
	ID            string     `json:"id"`
	ProductID     string     `json:"product_id"`
	ProductName   string     `json:"product_name"`
	Date          string     `json:"date"`
	Quantity      int        `json:"quantity"`
	UnitPrice     int64      `json:"unit_price"`
	TotalCost     int64      `json:"total_cost"`
	Type          LedgerType `json:"type"`
	Notes         string     `json:"notes,omitempty"`
	RelatedSaleID string     `json:"related_sale_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
