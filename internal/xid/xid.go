package xid

import (
	"fmt"

	"github.com/google/uuid"
)

func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s-%s", prefix, id.String())
}

// LedgerRow names the n-th outbound ledger row of a sale. Rewriting a sale
// with unchanged lines reproduces the same ids.
func LedgerRow(saleID string, n int) string {
	return fmt.Sprintf("%s-out-%d", saleID, n)
}
