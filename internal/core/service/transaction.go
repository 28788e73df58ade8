package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/port"
)

const tracerName = "github.com/rl1809/pos-inventory/internal/core/service"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// txRunner opens a unit of work, runs a step against it and dispatches the
// events the step recorded once Commit has succeeded.
type txRunner struct {
	uow        port.UnitOfWork
	dispatcher port.EventDispatcher
	logger     *zap.Logger
}

func (r txRunner) run(ctx context.Context, fn func(tx port.Transaction, events *domain.EventBuffer) error) error {
	tx, err := r.uow.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var events domain.EventBuffer
	if err := fn(tx, &events); err != nil {
		return err
	}

	// a cancelled caller aborts before commit; nothing is written or dispatched
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.dispatch(context.WithoutCancel(ctx), events.Drain())
	return nil
}

// dispatch hands committed events to the dispatcher. The data is already
// durable, so handler failures are logged rather than returned.
func (r txRunner) dispatch(ctx context.Context, events []domain.DomainEvent) {
	if len(events) == 0 || r.dispatcher == nil {
		return
	}
	if err := r.dispatcher.DispatchMany(ctx, events); err != nil {
		r.logger.Error("post-commit event dispatch failed",
			zap.Int("events", len(events)),
			zap.Error(err),
		)
	}
}

func recordSpanError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
