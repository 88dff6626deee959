package settlement

import (
	"context"

	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// SellerNotification is a flattened payout lifecycle message for delivery to
// the seller-facing notification channel.
type SellerNotification struct {
	SellerID string `json:"seller_id"`
	PayoutID string `json:"payout_id"`
	Event    string `json:"event"`
	Amount   string `json:"amount"`
	Detail   string `json:"detail,omitempty"`
}

// SellerNotifier delivers payout lifecycle notifications to sellers.
// Implementations can back onto email, push, or a webhook dispatcher.
type SellerNotifier interface {
	NotifySeller(ctx context.Context, notification SellerNotification) error
}

// PayoutNotificationHandler subscribes to payout lifecycle events and fans
// them out to the seller notification channel. Delivery is fire-and-forget:
// a failed notification is logged and dropped, never retried against the
// settlement transaction that produced it.
type PayoutNotificationHandler struct {
	logger   *zap.Logger
	notifier SellerNotifier
}

// NewPayoutNotificationHandler creates a new PayoutNotificationHandler
func NewPayoutNotificationHandler(logger *zap.Logger) *PayoutNotificationHandler {
	return &PayoutNotificationHandler{logger: logger}
}

// WithNotifier sets the delivery channel
func (h *PayoutNotificationHandler) WithNotifier(notifier SellerNotifier) *PayoutNotificationHandler {
	h.notifier = notifier
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *PayoutNotificationHandler) EventTypes() []string {
	return []string{
		settlement.EventTypePayoutRequested,
		settlement.EventTypePayoutApproved,
		settlement.EventTypePayoutRejected,
		settlement.EventTypePayoutCompleted,
		settlement.EventTypePayoutFailed,
	}
}

// Handle translates a payout event into a seller notification
func (h *PayoutNotificationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	notification := SellerNotification{
		PayoutID: event.AggregateID().String(),
		Event:    event.EventType(),
	}

	switch e := event.(type) {
	case *settlement.PayoutRequestedEvent:
		notification.SellerID = e.SellerID.String()
		notification.Amount = e.Amount.String()
	case *settlement.PayoutApprovedEvent:
		notification.SellerID = e.SellerID.String()
		notification.Amount = e.Amount.String()
	case *settlement.PayoutRejectedEvent:
		notification.SellerID = e.SellerID.String()
		notification.Amount = e.Amount.String()
		notification.Detail = e.Reason
	case *settlement.PayoutCompletedEvent:
		notification.SellerID = e.SellerID.String()
		notification.Amount = e.Amount.String()
		notification.Detail = e.ProviderPayoutID
	case *settlement.PayoutFailedEvent:
		notification.SellerID = e.SellerID.String()
		notification.Amount = e.Amount.String()
		notification.Detail = e.Reason
	default:
		h.logger.Warn("unexpected payout event type",
			zap.String("event_type", event.EventType()))
		return nil
	}

	if h.notifier == nil {
		return nil
	}

	if err := h.notifier.NotifySeller(ctx, notification); err != nil {
		h.logger.Error("failed to deliver payout notification",
			zap.String("payout_id", notification.PayoutID),
			zap.String("event", notification.Event),
			zap.Error(err),
		)
		// Notification failure never fails event handling
	}
	return nil
}

// Ensure PayoutNotificationHandler implements shared.EventHandler
var _ shared.EventHandler = (*PayoutNotificationHandler)(nil)

// LoggingSellerNotifier logs notifications instead of delivering them,
// useful until a real channel is wired up.
type LoggingSellerNotifier struct {
	logger *zap.Logger
}

// NewLoggingSellerNotifier creates a new LoggingSellerNotifier
func NewLoggingSellerNotifier(logger *zap.Logger) *LoggingSellerNotifier {
	return &LoggingSellerNotifier{logger: logger}
}

// NotifySeller logs the notification
func (n *LoggingSellerNotifier) NotifySeller(_ context.Context, notification SellerNotification) error {
	n.logger.Info("seller notification",
		zap.String("seller_id", notification.SellerID),
		zap.String("payout_id", notification.PayoutID),
		zap.String("event", notification.Event),
		zap.String("amount", notification.Amount),
		zap.String("detail", notification.Detail),
	)
	return nil
}

// Ensure LoggingSellerNotifier implements SellerNotifier
var _ SellerNotifier = (*LoggingSellerNotifier)(nil)
