package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog is an in-memory CatalogClient with per-id failure injection.
type fakeCatalog struct {
	products   map[string]Product
	failGet    map[string]bool
	failUpdate map[string]bool
	getCalls   int
	updates    []string
}

func newFakeCatalog(products ...Product) *fakeCatalog {
	m := make(map[string]Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &fakeCatalog{
		products:   m,
		failGet:    map[string]bool{},
		failUpdate: map[string]bool{},
	}
}

func (f *fakeCatalog) List(context.Context) ([]Product, error) {
	out := make([]Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeCatalog) Get(_ context.Context, id string) (Product, error) {
	f.getCalls++
	if f.failGet[id] {
		return Product{}, errors.New("injected get failure")
	}
	p, ok := f.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (f *fakeCatalog) Create(_ context.Context, p Product) (Product, error) {
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeCatalog) Update(_ context.Context, id string, p Product) (Product, error) {
	if f.failUpdate[id] {
		return Product{}, errors.New("injected update failure")
	}
	f.products[id] = p
	f.updates = append(f.updates, id)
	return p, nil
}

func (f *fakeCatalog) Delete(_ context.Context, id string) error {
	delete(f.products, id)
	return nil
}

// fakeOrders records archived checkouts.
type fakeOrders struct {
	recorded []string
	failNext bool
}

func (f *fakeOrders) Record(_ context.Context, username string, _ float64, _ []CartLine) (string, error) {
	if f.failNext {
		return "", errors.New("archive down")
	}
	f.recorded = append(f.recorded, username)
	return "order-1", nil
}

func (f *fakeOrders) List(context.Context, int, int) ([]OrderSummary, int, error) {
	return nil, 0, nil
}

func loggedInSessions(t *testing.T) *SessionStore {
	t.Helper()
	store := newTestSessionStore(NewMemoryKV(), time.Now())
	store.now = time.Now
	_, err := store.Login(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	return store
}

func checkoutCart(t *testing.T, products ...Product) *CartStore {
	t.Helper()
	cart := NewCartStore(nil)
	for _, p := range products {
		require.NoError(t, cart.Add(p))
	}
	return cart
}

func TestCheckoutRequiresLogin(t *testing.T) {
	catalog := newFakeCatalog(Product{ID: "a", Stock: 5})
	orch := NewCheckoutOrchestrator(catalog, nil, nil)

	cart := checkoutCart(t, Product{ID: "a", Title: "Chair", Price: 10, Stock: 5})
	anonymous := newTestSessionStore(NewMemoryKV(), time.Now())

	_, err := orch.Checkout(context.Background(), cart, anonymous)
	assert.ErrorIs(t, err, ErrRequiresLogin)

	// Neither the cart nor the remote catalog was touched.
	assert.Equal(t, 1, cart.Count())
	assert.Zero(t, catalog.getCalls)
	assert.Empty(t, catalog.updates)
}

func TestCheckoutEmptyCart(t *testing.T) {
	orch := NewCheckoutOrchestrator(newFakeCatalog(), nil, nil)
	_, err := orch.Checkout(context.Background(), NewCartStore(nil), loggedInSessions(t))
	assert.ErrorIs(t, err, ErrCartEmpty)
}

func TestCheckoutDecrementsLiveStockAndClearsCart(t *testing.T) {
	// The live stock differs from the cart snapshot; checkout must decrement
	// the freshly-read value.
	catalog := newFakeCatalog(
		Product{ID: "a", Title: "Chair", Price: 10, Stock: 10},
		Product{ID: "b", Title: "Rug", Price: 3.5, Stock: 1},
	)
	snapshotA := Product{ID: "a", Title: "Chair", Price: 10, Stock: 5}
	snapshotB := Product{ID: "b", Title: "Rug", Price: 3.5, Stock: 3}

	cart := NewCartStore(nil)
	require.NoError(t, cart.Add(snapshotA))
	require.NoError(t, cart.Add(snapshotA))
	require.NoError(t, cart.Add(snapshotB))
	require.NoError(t, cart.Add(snapshotB))

	orders := &fakeOrders{}
	orch := NewCheckoutOrchestrator(catalog, orders, nil)

	result, err := orch.Checkout(context.Background(), cart, loggedInSessions(t))
	require.NoError(t, err)
	assert.Equal(t, CheckoutCompleted, result.Status)
	assert.Equal(t, "order-1", result.OrderID)

	// live 10 - qty 2 = 8; live 1 - qty 2 clamps at 0.
	assert.Equal(t, 8, catalog.products["a"].Stock)
	assert.Equal(t, 0, catalog.products["b"].Stock)

	assert.Empty(t, cart.Lines())
	assert.Equal(t, []string{"alice"}, orders.recorded)
}

func TestCheckoutPartialFailureLeavesCart(t *testing.T) {
	catalog := newFakeCatalog(
		Product{ID: "a", Title: "Chair", Price: 10, Stock: 5},
		Product{ID: "b", Title: "Rug", Price: 3.5, Stock: 5},
	)
	catalog.failUpdate["b"] = true

	cart := checkoutCart(t,
		Product{ID: "a", Title: "Chair", Price: 10, Stock: 5},
		Product{ID: "b", Title: "Rug", Price: 3.5, Stock: 5},
	)
	orders := &fakeOrders{}
	orch := NewCheckoutOrchestrator(catalog, orders, nil)

	result, err := orch.Checkout(context.Background(), cart, loggedInSessions(t))
	require.NoError(t, err)
	assert.Equal(t, CheckoutPartialFailure, result.Status)

	// Updated lines are not rolled back, the cart is not cleared, no order
	// is archived.
	assert.Equal(t, 4, catalog.products["a"].Stock)
	assert.Equal(t, 5, catalog.products["b"].Stock)
	assert.Equal(t, 2, cart.Count())
	assert.Empty(t, orders.recorded)

	var failed []string
	for _, lr := range result.Lines {
		if !lr.Updated {
			failed = append(failed, lr.ProductID)
		}
	}
	assert.Equal(t, []string{"b"}, failed)
}

func TestRetryReprocessesOnlyFailedLines(t *testing.T) {
	catalog := newFakeCatalog(
		Product{ID: "a", Title: "Chair", Price: 10, Stock: 5},
		Product{ID: "b", Title: "Rug", Price: 3.5, Stock: 5},
	)
	catalog.failUpdate["b"] = true

	cart := checkoutCart(t,
		Product{ID: "a", Title: "Chair", Price: 10, Stock: 5},
		Product{ID: "b", Title: "Rug", Price: 3.5, Stock: 5},
	)
	sessions := loggedInSessions(t)
	orch := NewCheckoutOrchestrator(catalog, nil, nil)

	first, err := orch.Checkout(context.Background(), cart, sessions)
	require.NoError(t, err)
	require.Equal(t, CheckoutPartialFailure, first.Status)

	// The failure clears; the retry must not decrement "a" a second time.
	delete(catalog.failUpdate, "b")
	updatesBefore := len(catalog.updates)

	second, err := orch.Retry(context.Background(), cart, sessions, first)
	require.NoError(t, err)
	assert.Equal(t, CheckoutCompleted, second.Status)

	assert.Equal(t, 4, catalog.products["a"].Stock)
	assert.Equal(t, 4, catalog.products["b"].Stock)
	assert.Equal(t, updatesBefore+1, len(catalog.updates))
	assert.Empty(t, cart.Lines())
}

func TestRetryProcessesLinesAddedAfterFailure(t *testing.T) {
	catalog := newFakeCatalog(
		Product{ID: "a", Title: "Chair", Price: 10, Stock: 5},
		Product{ID: "b", Title: "Rug", Price: 3.5, Stock: 5},
		Product{ID: "c", Title: "Lamp", Price: 7, Stock: 5},
	)
	catalog.failUpdate["b"] = true

	cart := checkoutCart(t,
		Product{ID: "a", Title: "Chair", Price: 10, Stock: 5},
		Product{ID: "b", Title: "Rug", Price: 3.5, Stock: 5},
	)
	sessions := loggedInSessions(t)
	orch := NewCheckoutOrchestrator(catalog, nil, nil)

	first, err := orch.Checkout(context.Background(), cart, sessions)
	require.NoError(t, err)
	require.Equal(t, CheckoutPartialFailure, first.Status)

	// The shopper keeps shopping between the failure and the retry.
	require.NoError(t, cart.Add(Product{ID: "c", Title: "Lamp", Price: 7, Stock: 5}))
	delete(catalog.failUpdate, "b")

	second, err := orch.Retry(context.Background(), cart, sessions, first)
	require.NoError(t, err)
	assert.Equal(t, CheckoutCompleted, second.Status)

	// The new line is decremented like the rest before the cart clears.
	assert.Equal(t, 4, catalog.products["a"].Stock)
	assert.Equal(t, 4, catalog.products["b"].Stock)
	assert.Equal(t, 4, catalog.products["c"].Stock)
	assert.Equal(t, 20.5, second.Total)
	assert.Empty(t, cart.Lines())
}

func TestCheckoutCompletesWhenArchiveFails(t *testing.T) {
	catalog := newFakeCatalog(Product{ID: "a", Title: "Chair", Price: 10, Stock: 5})
	cart := checkoutCart(t, Product{ID: "a", Title: "Chair", Price: 10, Stock: 5})
	orders := &fakeOrders{failNext: true}
	orch := NewCheckoutOrchestrator(catalog, orders, nil)

	result, err := orch.Checkout(context.Background(), cart, loggedInSessions(t))
	require.NoError(t, err)
	assert.Equal(t, CheckoutCompleted, result.Status)
	assert.Empty(t, result.OrderID)
	assert.Empty(t, cart.Lines())
}

func TestCheckoutGetFailureReported(t *testing.T) {
	catalog := newFakeCatalog(Product{ID: "a", Title: "Chair", Price: 10, Stock: 5})
	catalog.failGet["a"] = true

	cart := checkoutCart(t, Product{ID: "a", Title: "Chair", Price: 10, Stock: 5})
	orch := NewCheckoutOrchestrator(catalog, nil, nil)

	result, err := orch.Checkout(context.Background(), cart, loggedInSessions(t))
	require.NoError(t, err)
	assert.Equal(t, CheckoutPartialFailure, result.Status)
	require.Len(t, result.Lines, 1)
	assert.False(t, result.Lines[0].Updated)
	assert.Contains(t, result.Lines[0].Error, "injected get failure")
}
