// Package notify delivers best-effort customer notifications. Delivery
// failures are logged, never surfaced to the checkout path.
package notify

import (
	"context"

	"go.uber.org/zap"

	"shopcenter/backend/internal/domain"
)

type Notifier interface {
	OrderConfirmed(ctx context.Context, order domain.Order)
	ReturnProcessed(ctx context.Context, sale domain.Sale)
}

// Noop drops every notification.
type Noop struct{}

func (Noop) OrderConfirmed(context.Context, domain.Order) {}
func (Noop) ReturnProcessed(context.Context, domain.Sale) {}

// LogNotifier records notifications to the structured log. It stands in
// until a real mail or push channel is wired up.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) OrderConfirmed(ctx context.Context, order domain.Order) {
	n.logger.Info("order confirmation notification",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int64("total_cents", order.TotalCents))
}

func (n *LogNotifier) ReturnProcessed(ctx context.Context, sale domain.Sale) {
	n.logger.Info("return processed notification",
		zap.String("sale_id", sale.ID),
		zap.String("original_sale_id", sale.OriginalSaleID),
		zap.Int64("total_cents", sale.TotalCents))
}
