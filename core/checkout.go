package core

import (
	"context"
	"errors"
	"log"
)

var (
	// ErrRequiresLogin is returned when checkout runs without a valid
	// session; neither the cart nor the remote catalog is touched.
	ErrRequiresLogin = errors.New("login required")
	// ErrCartEmpty is returned when checkout runs over an empty cart.
	ErrCartEmpty = errors.New("cart is empty")
)

// CheckoutStatus summarizes a checkout attempt.
type CheckoutStatus string

const (
	CheckoutCompleted      CheckoutStatus = "completed"
	CheckoutPartialFailure CheckoutStatus = "partial_failure"
)

// LineResult records the outcome of one line's stock decrement. A failed
// line can be retried individually; updated lines are never reprocessed.
type LineResult struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	Updated   bool   `json:"updated"`
	Error     string `json:"error,omitempty"`
}

// CheckoutResult is the resumable per-line status of a checkout attempt.
type CheckoutResult struct {
	Status  CheckoutStatus `json:"status"`
	Total   float64        `json:"total"`
	Lines   []LineResult   `json:"lines"`
	OrderID string         `json:"order_id,omitempty"`
}

// CheckoutOrchestrator sequences stock decrement against the remote catalog
// and cart clearing at purchase completion. It is not a transaction: a line
// that fails mid-sequence is reported, already-updated lines are not rolled
// back, and the cart stays intact for a retry.
type CheckoutOrchestrator struct {
	catalog CatalogClient
	orders  OrderRepository // optional; nil skips archiving
	metrics *MetricsService // optional; nil skips counters
}

func NewCheckoutOrchestrator(catalog CatalogClient, orders OrderRepository, metrics *MetricsService) *CheckoutOrchestrator {
	return &CheckoutOrchestrator{catalog: catalog, orders: orders, metrics: metrics}
}

// Checkout decrements remote stock for every cart line and clears the cart
// when all lines succeed. Preconditions: an authenticated session and a
// non-empty cart.
func (o *CheckoutOrchestrator) Checkout(ctx context.Context, cart *CartStore, sessions *SessionStore) (CheckoutResult, error) {
	sess, ok := sessions.Current()
	if !ok {
		return CheckoutResult{}, ErrRequiresLogin
	}

	lines := cart.Lines()
	if len(lines) == 0 {
		return CheckoutResult{}, ErrCartEmpty
	}

	result := CheckoutResult{Total: cart.Total()}
	result.Lines = o.processLines(ctx, lines)
	return o.finish(ctx, cart, sess, result)
}

// Retry reprocesses the lines a previous attempt failed on, plus any lines
// added to the cart since. Lines already marked updated keep their status;
// the session must still be valid.
func (o *CheckoutOrchestrator) Retry(ctx context.Context, cart *CartStore, sessions *SessionStore, prev CheckoutResult) (CheckoutResult, error) {
	sess, ok := sessions.Current()
	if !ok {
		return CheckoutResult{}, ErrRequiresLogin
	}

	byID := make(map[string]CartLine)
	for _, line := range cart.Lines() {
		byID[line.Product.ID] = line
	}

	covered := make(map[string]bool, len(prev.Lines))
	result := CheckoutResult{Total: cart.Total(), Lines: make([]LineResult, 0, len(prev.Lines))}
	for _, lr := range prev.Lines {
		covered[lr.ProductID] = true
		if lr.Updated {
			result.Lines = append(result.Lines, lr)
			continue
		}
		line, ok := byID[lr.ProductID]
		if !ok {
			// Line was removed from the cart since the failed attempt.
			continue
		}
		result.Lines = append(result.Lines, o.processLine(ctx, line))
	}
	// Cart lines the previous attempt never saw must be processed before
	// finish clears the cart, or their stock would never be decremented.
	for _, line := range cart.Lines() {
		if covered[line.Product.ID] {
			continue
		}
		result.Lines = append(result.Lines, o.processLine(ctx, line))
	}
	if len(result.Lines) == 0 {
		return CheckoutResult{}, ErrCartEmpty
	}
	return o.finish(ctx, cart, sess, result)
}

// processLines runs the read-modify-write per line. Order across lines is
// unspecified; every line observes its own freshly-read stock value.
func (o *CheckoutOrchestrator) processLines(ctx context.Context, lines []CartLine) []LineResult {
	out := make([]LineResult, 0, len(lines))
	for _, line := range lines {
		out = append(out, o.processLine(ctx, line))
	}
	return out
}

func (o *CheckoutOrchestrator) processLine(ctx context.Context, line CartLine) LineResult {
	lr := LineResult{
		ProductID: line.Product.ID,
		Title:     line.Product.Title,
		Quantity:  line.Quantity,
	}

	live, err := o.catalog.Get(ctx, line.Product.ID)
	if err != nil {
		lr.Error = err.Error()
		return lr
	}

	remaining := live.Stock - line.Quantity
	if remaining < 0 {
		remaining = 0
	}
	live.Stock = remaining

	if _, err := o.catalog.Update(ctx, line.Product.ID, live); err != nil {
		lr.Error = err.Error()
		return lr
	}
	lr.Updated = true
	return lr
}

// finish clears the cart and archives the order when every line updated,
// otherwise reports partial failure with the cart untouched.
func (o *CheckoutOrchestrator) finish(ctx context.Context, cart *CartStore, sess Session, result CheckoutResult) (CheckoutResult, error) {
	failed := 0
	for _, lr := range result.Lines {
		if !lr.Updated {
			failed++
		}
	}
	if failed > 0 {
		result.Status = CheckoutPartialFailure
		if o.metrics != nil {
			o.metrics.Add(ctx, MetricCheckoutLinesFailed, int64(failed))
		}
		return result, nil
	}

	result.Status = CheckoutCompleted
	if o.orders != nil {
		orderID, err := o.orders.Record(ctx, sess.User.Username, result.Total, cart.Lines())
		if err != nil {
			// Archiving is best-effort; the purchase itself went through.
			log.Printf("checkout: order archive failed: %v", err)
		} else {
			result.OrderID = orderID
		}
	}
	cart.Clear()
	if o.metrics != nil {
		o.metrics.Incr(ctx, MetricCheckoutsCompleted)
	}
	return result, nil
}
