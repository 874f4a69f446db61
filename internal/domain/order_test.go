package domain

import "testing"

func TestOrderStatusCanTransitionTo(t *testing.T) {
	t.Run("allows forward fulfillment transitions", func(t *testing.T) {
		allowed := []struct {
			from, to OrderStatus
		}{
			{OrderStatusConfirmed, OrderStatusProcessing},
			{OrderStatusProcessing, OrderStatusShipped},
			{OrderStatusShipped, OrderStatusDelivered},
			{OrderStatusConfirmed, OrderStatusCancelled},
			{OrderStatusDelivered, OrderStatusCancelled},
		}
		for _, tc := range allowed {
			if !tc.from.CanTransitionTo(tc.to) {
				t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
			}
		}
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		for _, next := range []OrderStatus{
			OrderStatusConfirmed, OrderStatusPending, OrderStatusProcessing,
			OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled,
		} {
			if OrderStatusCancelled.CanTransitionTo(next) {
				t.Errorf("expected CANCELLED -> %s to be rejected", next)
			}
		}
	})

	t.Run("rejects self and unknown targets", func(t *testing.T) {
		if OrderStatusConfirmed.CanTransitionTo(OrderStatusConfirmed) {
			t.Error("expected self transition to be rejected")
		}
		if OrderStatusConfirmed.CanTransitionTo(OrderStatus("RETURNED")) {
			t.Error("expected unknown status to be rejected")
		}
	})
}

func TestOrderStatusValid(t *testing.T) {
	if !OrderStatusShipped.Valid() {
		t.Error("expected SHIPPED to be valid")
	}
	if OrderStatus("lowercase").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}
