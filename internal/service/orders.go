package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/compustore/backend/internal/models"
	"github.com/compustore/backend/internal/store"
)

const (
	deliveryDelay = 48 * time.Hour
	returnWindow  = 30 * 24 * time.Hour

	taskTypePurchase = "purchase"
)

// Orders mutates the purchase ledger embedded in the session document.
// Now is injectable so delivery and return windows are testable; it
// defaults to time.Now.
type Orders struct {
	Store store.Store
	Now   func() time.Time
}

func (o *Orders) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Purchase appends a ledger entry with a fresh order id and resolves any
// pending purchase task for the same product. Tasks for other products are
// left untouched.
func (o *Orders) Purchase(ctx context.Context, userID, productID string) (models.PurchasedProduct, error) {
	var entry models.PurchasedProduct
	err := o.Store.UpdateSession(ctx, userID, false, func(state *models.SessionState) error {
		for _, p := range state.PurchasedProducts {
			if p.ProductID == productID {
				return invalidState("You already own this product!")
			}
		}

		entry = models.PurchasedProduct{
			ProductID:    productID,
			PurchaseDate: o.now().Format(models.PurchaseDateLayout),
			OrderID:      uuid.NewString(),
			OrderStatus:  models.OrderStatusDispatched,
		}
		state.PurchasedProducts = append(state.PurchasedProducts, entry)

		remaining := state.PendingTasks[:0]
		for _, task := range state.PendingTasks {
			if task.Type == taskTypePurchase && task.Context["product_id"] == productID {
				continue
			}
			remaining = append(remaining, task)
		}
		state.PendingTasks = remaining
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return models.PurchasedProduct{}, notFound(fmt.Sprintf("User with ID '%s' not found.", userID))
	}
	return entry, err
}

// Cancel removes an order that has not been delivered. An order counts as
// delivered once its stored status says so or two days have elapsed since
// purchase, whichever is stricter.
func (o *Orders) Cancel(ctx context.Context, userID, orderID string) error {
	err := o.Store.UpdateSession(ctx, userID, false, func(state *models.SessionState) error {
		idx := findOrder(state.PurchasedProducts, orderID)
		if idx < 0 {
			return notFound(fmt.Sprintf("Order with ID '%s' not found.", orderID))
		}
		order := state.PurchasedProducts[idx]

		if order.OrderStatus == models.OrderStatusDelivered {
			return invalidState("This order has already been delivered and cannot be cancelled.")
		}
		purchasedAt, perr := order.PurchasedAt()
		if perr != nil {
			return malformed("Could not parse the purchase date for this order.")
		}
		if !o.now().Before(purchasedAt.Add(deliveryDelay)) {
			return invalidState("This order has already been delivered and cannot be cancelled.")
		}

		state.PurchasedProducts = append(state.PurchasedProducts[:idx], state.PurchasedProducts[idx+1:]...)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return notFound(fmt.Sprintf("User with ID '%s' not found.", userID))
	}
	return err
}

// ReturnOrExchange processes a return within 30 days of purchase.
func (o *Orders) ReturnOrExchange(ctx context.Context, userID, orderID string) error {
	err := o.Store.UpdateSession(ctx, userID, false, func(state *models.SessionState) error {
		idx := findOrder(state.PurchasedProducts, orderID)
		if idx < 0 {
			return notFound(fmt.Sprintf("Order with ID '%s' not found.", orderID))
		}
		order := state.PurchasedProducts[idx]

		purchasedAt, perr := order.PurchasedAt()
		if perr != nil {
			return malformed("Could not parse the purchase date for this order.")
		}
		if o.now().After(purchasedAt.Add(returnWindow)) {
			return invalidState("This product is outside the 30-day return/exchange window.")
		}

		state.PurchasedProducts = append(state.PurchasedProducts[:idx], state.PurchasedProducts[idx+1:]...)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return notFound(fmt.Sprintf("User with ID '%s' not found.", userID))
	}
	return err
}

// UpdateStatus overrides an order's stored status. Admin-only.
func (o *Orders) UpdateStatus(ctx context.Context, userID, orderID, status string) error {
	if status != models.OrderStatusDispatched && status != models.OrderStatusDelivered {
		return malformed(fmt.Sprintf("Unknown order status '%s'.", status))
	}
	err := o.Store.UpdateSession(ctx, userID, false, func(state *models.SessionState) error {
		idx := findOrder(state.PurchasedProducts, orderID)
		if idx < 0 {
			return notFound(fmt.Sprintf("Order with ID '%s' not found for user '%s'.", orderID, userID))
		}
		state.PurchasedProducts[idx].OrderStatus = status
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return notFound(fmt.Sprintf("User with ID '%s' not found.", userID))
	}
	return err
}

func findOrder(products []models.PurchasedProduct, orderID string) int {
	for i, p := range products {
		if p.OrderID == orderID {
			return i
		}
	}
	return -1
}
