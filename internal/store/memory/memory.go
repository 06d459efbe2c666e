package memory

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"riceledger/backend/internal/domain"
	"riceledger/backend/internal/store"
	"riceledger/backend/internal/xid"
)

// Store keeps every collection in process memory. Mutations run against a
// snapshot that replaces the live state only when the unit of work succeeds.
type Store struct {
	mu              sync.RWMutex
	state           *snapshot
	usersByUsername map[string]domain.UserAccount
}

type snapshot struct {
	customers map[string]domain.Customer
	products  map[string]domain.Product
	sales     map[string]domain.Sale
	ledger    map[string]domain.InventoryTransaction
}

func newSnapshot() *snapshot {
	return &snapshot{
		customers: make(map[string]domain.Customer),
		products:  make(map[string]domain.Product),
		sales:     make(map[string]domain.Sale),
		ledger:    make(map[string]domain.InventoryTransaction),
	}
}

// clone copies the maps. Sale lines are immutable so values can be shared.
func (s *snapshot) clone() *snapshot {
	return &snapshot{
		customers: maps.Clone(s.customers),
		products:  maps.Clone(s.products),
		sales:     maps.Clone(s.sales),
		ledger:    maps.Clone(s.ledger),
	}
}

func New() *Store {
	return &Store{
		state:           newSnapshot(),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD and fall
// back to dev defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		slog.Default().Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic(fmt.Sprintf("memory store: hash seed password for %s: %v", u.username, err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SeedProducts is the default rice catalogue.
func SeedProducts() []domain.Product {
	return []domain.Product{
		{Name: "고시히카리", Category: "백미", Unit: "포", Stock: 50, UnitPrice: 52000, CostPrice: 45000, SafetyStock: 10},
		{Name: "추청(아끼바레)", Category: "백미", Unit: "포", Stock: 80, UnitPrice: 48000, CostPrice: 42000, SafetyStock: 15},
		{Name: "삼광쌀", Category: "백미", Unit: "포", Stock: 100, UnitPrice: 45000, CostPrice: 39000, SafetyStock: 20},
		{Name: "오대쌀", Category: "백미", Unit: "포", Stock: 60, UnitPrice: 44000, CostPrice: 38000, SafetyStock: 15},
		{Name: "안남미", Category: "백미", Unit: "포", Stock: 40, UnitPrice: 40000, CostPrice: 35000, SafetyStock: 10},
		{Name: "현미", Category: "현미", Unit: "포", Stock: 30, UnitPrice: 48000, CostPrice: 42000, SafetyStock: 10},
	}
}

// NewSeeded returns a store with demo users and, when withCatalogue is set,
// the default product catalogue.
func NewSeeded(withCatalogue bool) *Store {
	s := New()
	s.usersByUsername = seedUsers()
	if withCatalogue {
		for _, p := range SeedProducts() {
			p.ID = xid.New("prd")
			s.state.products[p.ID] = p
		}
	}
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := &memTx{state: s.state.clone()}
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.state = work.state
	return nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCustomers(s.state.customers), nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	products := slices.Collect(maps.Values(s.state.products))
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmp.Or(cmp.Compare(a.Category, b.Category), cmp.Compare(a.Name, b.Name))
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.state.products[id]
	if !ok {
		return domain.Product{}, store.NotFound("product", id)
	}
	return product, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedSales(s.state.sales), nil
}

func (s *Store) GetSale(_ context.Context, id string) (domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.state.sales[id]
	if !ok {
		return domain.Sale{}, store.NotFound("sale", id)
	}
	return sale, nil
}

func (s *Store) ListInventoryTransactions(_ context.Context) ([]domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedLedger(s.state.ledger, func(domain.InventoryTransaction) bool { return true }), nil
}

func (s *Store) ListInventoryTransactionsByProduct(_ context.Context, productID string) ([]domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedLedger(s.state.ledger, func(row domain.InventoryTransaction) bool {
		return row.ProductID == productID
	}), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := slices.Collect(maps.Values(s.usersByUsername))
	slices.SortFunc(users, func(a, b domain.UserAccount) int { return cmp.Compare(a.Username, b.Username) })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.NotFound("user", username)
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func sortedCustomers(src map[string]domain.Customer) []domain.Customer {
	customers := slices.Collect(maps.Values(src))
	slices.SortFunc(customers, func(a, b domain.Customer) int { return cmp.Compare(a.Name, b.Name) })
	return customers
}

// sortedSales orders by date, newest first.
func sortedSales(src map[string]domain.Sale) []domain.Sale {
	sales := slices.Collect(maps.Values(src))
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return cmp.Or(
			cmp.Compare(b.Date, a.Date),
			b.CreatedAt.Compare(a.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return sales
}

func sortedLedger(src map[string]domain.InventoryTransaction, keep func(domain.InventoryTransaction) bool) []domain.InventoryTransaction {
	rows := make([]domain.InventoryTransaction, 0, len(src))
	for _, row := range src {
		if keep(row) {
			rows = append(rows, row)
		}
	}
	slices.SortFunc(rows, func(a, b domain.InventoryTransaction) int {
		return cmp.Or(
			cmp.Compare(b.Date, a.Date),
			b.CreatedAt.Compare(a.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return rows
}
