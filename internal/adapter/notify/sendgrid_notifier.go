package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/rl1809/pos-inventory/internal/core/domain"
)

var ErrAlertsUnavailable = errors.New("low stock alerts unavailable")

type sendFunc func(ctx context.Context, msg *mail.SGMailV3) (status int, body string, err error)

// SendGridNotifier mails low-stock alerts to the store managers. Calls go
// through a circuit breaker so a SendGrid outage does not slow every sale.
type SendGridNotifier struct {
	send    sendFunc
	from    *mail.Email
	to      *mail.Email
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewSendGridNotifier(apiKey, from, to string, logger *zap.Logger) *SendGridNotifier {
	client := sendgrid.NewSendClient(apiKey)
	send := func(ctx context.Context, msg *mail.SGMailV3) (int, string, error) {
		resp, err := client.SendWithContext(ctx, msg)
		if err != nil {
			return 0, "", err
		}
		return resp.StatusCode, resp.Body, nil
	}
	return newSendGridNotifier(send, from, to, logger)
}

func newSendGridNotifier(send sendFunc, from, to string, logger *zap.Logger) *SendGridNotifier {
	settings := gobreaker.Settings{
		Name:        "sendgrid",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &SendGridNotifier{
		send:    send,
		from:    mail.NewEmail("POS Inventory", from),
		to:      mail.NewEmail("Store managers", to),
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

func (n *SendGridNotifier) NotifyLowStock(ctx context.Context, event *domain.LowStockEvent) error {
	subject := fmt.Sprintf("Low stock: %s", event.ProductID)
	text := fmt.Sprintf("Product %s is down to %d units (threshold %d) as of %s.",
		event.ProductID, event.CurrentQuantity, event.Threshold, event.OccurredOn().Format(time.RFC1123))
	html := fmt.Sprintf("<p>Product <strong>%s</strong> is down to <strong>%d</strong> units (threshold %d).</p>",
		event.ProductID, event.CurrentQuantity, event.Threshold)
	msg := mail.NewSingleEmail(n.from, subject, n.to, text, html)

	_, err := n.breaker.Execute(func() (interface{}, error) {
		status, body, err := n.send(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("sendgrid send error: %w", err)
		}
		if status >= 400 {
			return nil, fmt.Errorf("sendgrid send failed: status=%d, body=%s", status, body)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrAlertsUnavailable, err)
	}
	if err != nil {
		return err
	}

	n.logger.Info("low stock alert sent",
		zap.String("product_id", event.ProductID),
		zap.Int("quantity", event.CurrentQuantity),
	)
	return nil
}

// LogNotifier writes alerts to the log. It is used when no mail provider is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyLowStock(_ context.Context, event *domain.LowStockEvent) error {
	n.logger.Warn("low stock",
		zap.String("product_id", event.ProductID),
		zap.Int("quantity", event.CurrentQuantity),
		zap.Int("threshold", event.Threshold),
	)
	return nil
}
