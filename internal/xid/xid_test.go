package xid

import (
	"strings"
	"testing"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a := New("sale")
	b := New("sale")
	if !strings.HasPrefix(a, "sale-") {
		t.Fatalf("expected sale- prefix, got %s", a)
	}
	if a == b {
		t.Fatalf("expected distinct ids, got %s twice", a)
	}
}

func TestLedgerRowIsDeterministic(t *testing.T) {
	if got := LedgerRow("sale-1", 2); got != "sale-1-out-2" {
		t.Fatalf("unexpected ledger row id %s", got)
	}
}
