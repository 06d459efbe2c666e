package domain

import (
	"encoding/json"
	"errors"
	"slices"
	"time"
)

type SaleItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

func (i SaleItem) Amount() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

type lineShape uint8

const (
	shapeNone lineShape = iota
	shapeSingle
	shapeMulti
)

// SaleLines holds either exactly one item or an explicit list of items.
// Values are built with SingleItem or MultiItem and are immutable afterwards.
type SaleLines struct {
	shape lineShape
	items []SaleItem
}

func SingleItem(item SaleItem) SaleLines {
	return SaleLines{shape: shapeSingle, items: []SaleItem{item}}
}

func MultiItem(items []SaleItem) SaleLines {
	return SaleLines{shape: shapeMulti, items: slices.Clone(items)}
}

func (l SaleLines) IsZero() bool  { return l.shape == shapeNone }
func (l SaleLines) IsMulti() bool { return l.shape == shapeMulti }
func (l SaleLines) Len() int      { return len(l.items) }

// Items returns a copy of the active lines.
func (l SaleLines) Items() []SaleItem {
	return slices.Clone(l.items)
}

// Single returns the line of a single-item sale.
func (l SaleLines) Single() (SaleItem, bool) {
	if l.shape != shapeSingle || len(l.items) != 1 {
		return SaleItem{}, false
	}
	return l.items[0], true
}

func (l SaleLines) Total() int64 {
	var total int64
	for _, item := range l.items {
		total += item.Amount()
	}
	return total
}

type Sale struct {
	ID           string
	Date         string
	CustomerID   string
	CustomerName string
	Status       SaleStatus
	Notes        string
	TotalAmount  int64
	CreatedAt    time.Time
	Lines        SaleLines
}

type saleWire struct {
	ID           string     `json:"id"`
	Date         string     `json:"date"`
	CustomerID   string     `json:"customer_id"`
	CustomerName string     `json:"customer_name"`
	Status       SaleStatus `json:"status"`
	Notes        string     `json:"notes,omitempty"`
	TotalAmount  int64      `json:"total_amount"`
	CreatedAt    time.Time  `json:"created_at"`
	IsMultiItem  bool       `json:"is_multi_item"`
	ProductID    string     `json:"product_id,omitempty"`
	ProductName  string     `json:"product_name,omitempty"`
	Quantity     int        `json:"quantity,omitempty"`
	UnitPrice    int64      `json:"unit_price,omitempty"`
	Items        []SaleItem `json:"items,omitempty"`
}

// MarshalJSON keeps the flat single-item layout and the items layout
// side by side, discriminated by is_multi_item.
func (s Sale) MarshalJSON() ([]byte, error) {
	wire := saleWire{
		ID:           s.ID,
		Date:         s.Date,
		CustomerID:   s.CustomerID,
		CustomerName: s.CustomerName,
		Status:       s.Status,
		Notes:        s.Notes,
		TotalAmount:  s.TotalAmount,
		CreatedAt:    s.CreatedAt,
		IsMultiItem:  s.Lines.IsMulti(),
	}
	if item, ok := s.Lines.Single(); ok {
		wire.ProductID = item.ProductID
		wire.ProductName = item.ProductName
		wire.Quantity = item.Quantity
		wire.UnitPrice = item.UnitPrice
	} else {
		wire.Items = s.Lines.Items()
		if wire.Items == nil {
			wire.Items = []SaleItem{}
		}
	}
	return json.Marshal(wire)
}

func (s *Sale) UnmarshalJSON(data []byte) error {
	var wire saleWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*s = Sale{
		ID:           wire.ID,
		Date:         wire.Date,
		CustomerID:   wire.CustomerID,
		CustomerName: wire.CustomerName,
		Status:       wire.Status,
		Notes:        wire.Notes,
		TotalAmount:  wire.TotalAmount,
		CreatedAt:    wire.CreatedAt,
	}
	if wire.IsMultiItem {
		s.Lines = MultiItem(wire.Items)
		return nil
	}
	if wire.ProductName == "" && wire.ProductID == "" {
		return errors.New("sale: single-item record without product")
	}
	s.Lines = SingleItem(SaleItem{
		ProductID:   wire.ProductID,
		ProductName: wire.ProductName,
		Quantity:    wire.Quantity,
		UnitPrice:   wire.UnitPrice,
	})
	return nil
}
