package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/pos-inventory/internal/core/domain"
)

func lowStock() *domain.LowStockEvent {
	return &domain.LowStockEvent{ProductID: "P1", CurrentQuantity: 4, Threshold: 10}
}

func TestSendGridNotifier_SendsMail(t *testing.T) {
	var sent []*mail.SGMailV3
	send := func(_ context.Context, msg *mail.SGMailV3) (int, string, error) {
		sent = append(sent, msg)
		return 202, "", nil
	}
	n := newSendGridNotifier(send, "pos@example.com", "manager@example.com", zap.NewNop())

	require.NoError(t, n.NotifyLowStock(context.Background(), lowStock()))
	require.Len(t, sent, 1)
	assert.Equal(t, "Low stock: P1", sent[0].Subject)
	assert.Equal(t, "pos@example.com", sent[0].From.Address)
	require.Len(t, sent[0].Personalizations, 1)
	assert.Equal(t, "manager@example.com", sent[0].Personalizations[0].To[0].Address)
}

func TestSendGridNotifier_ErrorStatus(t *testing.T) {
	send := func(context.Context, *mail.SGMailV3) (int, string, error) {
		return 401, `{"errors":[{"message":"bad key"}]}`, nil
	}
	n := newSendGridNotifier(send, "pos@example.com", "manager@example.com", zap.NewNop())

	err := n.NotifyLowStock(context.Background(), lowStock())
	assert.ErrorContains(t, err, "status=401")
}

func TestSendGridNotifier_BreakerOpensAfterFailures(t *testing.T) {
	calls := 0
	send := func(context.Context, *mail.SGMailV3) (int, string, error) {
		calls++
		return 0, "", errors.New("connection refused")
	}
	n := newSendGridNotifier(send, "pos@example.com", "manager@example.com", zap.NewNop())

	for i := 0; i < 3; i++ {
		assert.Error(t, n.NotifyLowStock(context.Background(), lowStock()))
	}
	err := n.NotifyLowStock(context.Background(), lowStock())
	assert.ErrorIs(t, err, ErrAlertsUnavailable)
	assert.Equal(t, 3, calls, "open breaker short-circuits the call")
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(zap.NewNop()).NotifyLowStock(context.Background(), lowStock()))
}
