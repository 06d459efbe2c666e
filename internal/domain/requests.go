package domain

import "time"

// Quantities are capped at 1,000,000 and prices at 1,000,000,000 won so line
// amounts and sale totals stay far inside int64.
type SaleItemInput struct {
	ProductName string `json:"product_name" validate:"required,max=100"`
	Quantity    int    `json:"quantity" validate:"gt=0,lte=1000000"`
	UnitPrice   int64  `json:"unit_price" validate:"gte=0,lte=1000000000"`
}

// NewSaleRequest carries the flat product fields for AddSale and Items for
// AddMultiItemSale.
type NewSaleRequest struct {
	CustomerName string          `json:"customer_name" validate:"required,max=100"`
	ProductName  string          `json:"product_name,omitempty"`
	Quantity     int             `json:"quantity,omitempty"`
	UnitPrice    int64           `json:"unit_price,omitempty"`
	Items        []SaleItemInput `json:"items,omitempty"`
	Status       SaleStatus      `json:"status" validate:"required,oneof=PAID UNPAID DELIVERING"`
	Notes        string          `json:"notes,omitempty" validate:"max=500"`
	Date         string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// SaleUpdate is a patch. A nil Items leaves the item list alone; a non-nil
// (possibly empty) Items turns the sale into a multi-item sale.
type SaleUpdate struct {
	CustomerName *string         `json:"customer_name,omitempty"`
	ProductName  *string         `json:"product_name,omitempty"`
	Quantity     *int            `json:"quantity,omitempty"`
	UnitPrice    *int64          `json:"unit_price,omitempty"`
	Items        []SaleItemInput `json:"items"`
	Status       *SaleStatus     `json:"status,omitempty"`
	Notes        *string         `json:"notes,omitempty"`
	Date         *string         `json:"date,omitempty"`
}

func (u SaleUpdate) HasSingleItemFields() bool {
	return u.ProductName != nil || u.Quantity != nil || u.UnitPrice != nil
}

type SaleResult struct {
	Success  bool     `json:"success"`
	ID       string   `json:"id"`
	Sale     Sale     `json:"sale"`
	Warning  string   `json:"warning,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type ReconcileResult struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	CustomersUpdated int    `json:"customers_updated"`
	SkippedSales     int    `json:"skipped_sales"`
}

type InventoryTransactionRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Date      string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=1000000"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0,lte=1000000000"`
	Notes     string `json:"notes,omitempty" validate:"max=500"`
}

type InventoryTransactionUpdate struct {
	Date      *string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Quantity  *int    `json:"quantity,omitempty" validate:"omitempty,gt=0,lte=1000000"`
	UnitPrice *int64  `json:"unit_price,omitempty" validate:"omitempty,gte=0,lte=1000000000"`
	Notes     *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type InventorySummary struct {
	TotalIn     int   `json:"total_in"`
	TotalOut    int   `json:"total_out"`
	TotalInCost int64 `json:"total_in_cost"`
	AvgInPrice  int64 `json:"avg_in_price"`
	InCount     int   `json:"in_count"`
	OutCount    int   `json:"out_count"`
}

type ProductInventory struct {
	Product      Product                `json:"product"`
	Transactions []InventoryTransaction `json:"transactions"`
	Summary      InventorySummary       `json:"summary"`
}

type ProductCreateRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Category    string `json:"category,omitempty" validate:"max=50"`
	Unit        string `json:"unit,omitempty" validate:"max=20"`
	Stock       int    `json:"stock" validate:"gte=0,lte=1000000"`
	UnitPrice   int64  `json:"unit_price" validate:"gte=0,lte=1000000000"`
	CostPrice   int64  `json:"cost_price" validate:"gte=0,lte=1000000000"`
	SafetyStock int    `json:"safety_stock" validate:"gte=0"`
}

// ProductUpdateRequest has no stock field; stock moves only through the ledger.
type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Category    *string `json:"category,omitempty" validate:"omitempty,max=50"`
	Unit        *string `json:"unit,omitempty" validate:"omitempty,max=20"`
	UnitPrice   *int64  `json:"unit_price,omitempty" validate:"omitempty,gte=0,lte=1000000000"`
	CostPrice   *int64  `json:"cost_price,omitempty" validate:"omitempty,gte=0,lte=1000000000"`
	SafetyStock *int    `json:"safety_stock,omitempty" validate:"omitempty,gte=0"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Contact *string `json:"contact,omitempty" validate:"omitempty,max=50"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=200"`
}

type DashboardStats struct {
	TodaySales    int64 `json:"today_sales"`
	TodayOrders   int   `json:"today_orders"`
	TotalUnpaid   int64 `json:"total_unpaid"`
	LowStockCount int   `json:"low_stock_count"`
}

type TopCustomer struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	OrderCount   int    `json:"order_count"`
	TotalSales   int64  `json:"total_sales"`
	UnpaidAmount int64  `json:"unpaid_amount"`
}

type DailySales struct {
	Date  string `json:"date"`
	Name  string `json:"name"`
	Sales int64  `json:"sales"`
}

type Backup struct {
	Timestamp             time.Time              `json:"timestamp"`
	Customers             []Customer             `json:"customers"`
	Products              []Product              `json:"products"`
	Sales                 []Sale                 `json:"sales"`
	InventoryTransactions []InventoryTransaction `json:"inventory_transactions"`
}
