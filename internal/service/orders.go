package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"shopcenter/backend/internal/domain"
	"shopcenter/backend/internal/store"
)

// validTransitions is the order state machine. pending→paid fires
// automatically on payment confirmation; everything else is admin-only.
// Cancellation does not restock; an explicit stock adjustment or return is
// a separate operation.
var validTransitions = map[string][]string{
	domain.OrderStatusPending:    {domain.OrderStatusPaid, domain.OrderStatusCancelled},
	domain.OrderStatusPaid:       {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: no actor", ErrForbidden)
	}

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if actor.Role != domain.RoleAdmin && order.UserID != actor.UserID {
		return domain.Order{}, fmt.Errorf("%w: not your order", ErrForbidden)
	}
	return *order, nil
}

// ListOrders returns recent orders; customers see only their own.
func (s *Service) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no actor", ErrForbidden)
	}

	userID := ""
	if actor.Role != domain.RoleAdmin {
		userID = actor.UserID
	}
	return s.repo.ListOrders(ctx, userID, limit)
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id string, status string) (domain.Order, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	if !transitionAllowed(order.Status, status) {
		return domain.Order{}, fmt.Errorf("%w: cannot move order from %s to %s", store.ErrValidation, order.Status, status)
	}

	updated, err := s.repo.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.Info("order status updated",
		zap.String("order_id", id),
		zap.String("from", order.Status),
		zap.String("to", status),
		zap.String("by", actor.Username))
	return *updated, nil
}

func transitionAllowed(from string, to string) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
