package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hemogrid/internal/bloodrequest/metrics"
	id "hemogrid/pkg/domain"
	dErrors "hemogrid/pkg/domain-errors"
	"hemogrid/pkg/platform/sentinel"
	"hemogrid/pkg/requestcontext"
)

const (
	defaultRetries       = 3
	defaultRetryBackoff  = 20 * time.Millisecond
	defaultFanOutLimit   = 8
	defaultFanOutTimeout = 30 * time.Second
	defaultListLimit     = 100
)

// Service is the request lifecycle engine: matching on create, arbitration of
// acceptances, lifecycle transitions and expiry. Stores are only mutated
// inside tx.RunInTx; notifications are sent after commit and never fail an
// operation.
type Service struct {
	requests  RequestStore
	donations DonationStore
	directory DonorDirectory
	notifier  NotificationSink
	tx        StoreTx

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	retries       int
	retryBackoff  time.Duration
	fanOutLimit   int
	fanOutTimeout time.Duration
	listLimit     int

	// in-flight fan-outs detached from their originating request
	background sync.WaitGroup
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithTx sets the transaction runner. The default serialises in-memory stores.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithRetry bounds how often a transaction is replayed after a transient
// store failure. attempts counts the first try.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.retries = attempts
		}
		if backoff >= 0 {
			s.retryBackoff = backoff
		}
	}
}

// WithFanOut bounds concurrent notification writes and the total time a
// fan-out may take.
func WithFanOut(concurrency int, timeout time.Duration) Option {
	return func(s *Service) {
		if concurrency > 0 {
			s.fanOutLimit = concurrency
		}
		if timeout > 0 {
			s.fanOutTimeout = timeout
		}
	}
}

// WithListLimit caps the page size of active listings.
func WithListLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.listLimit = n
		}
	}
}

func New(requests RequestStore, donations DonationStore, directory DonorDirectory, notifier NotificationSink, opts ...Option) (*Service, error) {
	if requests == nil {
		return nil, errors.New("request store is required")
	}
	if donations == nil {
		return nil, errors.New("donation store is required")
	}
	if directory == nil {
		return nil, errors.New("donor directory is required")
	}
	if notifier == nil {
		return nil, errors.New("notification sink is required")
	}

	s := &Service{
		requests:      requests,
		donations:     donations,
		directory:     directory,
		notifier:      notifier,
		logger:        slog.Default(),
		tracer:        otel.Tracer("hemogrid/bloodrequest"),
		retries:       defaultRetries,
		retryBackoff:  defaultRetryBackoff,
		fanOutLimit:   defaultFanOutLimit,
		fanOutTimeout: defaultFanOutTimeout,
		listLimit:     defaultListLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newShardedRequestTx()
	}
	return s, nil
}

// Wait blocks until detached fan-outs have finished. Used on shutdown.
func (s *Service) Wait() {
	s.background.Wait()
}

// runInTx runs fn in a transaction and replays it while the store reports a
// transient failure. Exhausted retries surface as conflict.
func (s *Service) runInTx(ctx context.Context, op string, fn func(txCtx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		err = s.tx.RunInTx(ctx, fn)
		if !errors.Is(err, sentinel.ErrUnavailable) {
			return err
		}
		if attempt == s.retries {
			break
		}
		s.metrics.IncrementRetry()
		s.logger.WarnContext(ctx, "retrying transaction after transient failure",
			"operation", op,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "operation cancelled while retrying")
		case <-time.After(s.retryBackoff * time.Duration(attempt)):
		}
	}
	return dErrors.Wrap(err, dErrors.CodeConflict, "request is busy, try again")
}

// notify hands a message to the sink and swallows failures.
func (s *Service) notify(ctx context.Context, recipient id.UserID, requestID id.RequestID, message string) {
	if err := s.notifier.Enqueue(ctx, recipient, requestID, message); err != nil {
		s.metrics.IncrementNotifyFailure()
		s.logger.WarnContext(ctx, "failed to notify user",
			"recipient_id", recipient,
			"blood_request_id", requestID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (s *Service) startSpan(ctx context.Context, name string, requestID id.RequestID) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("actor.id", requestcontext.UserID(ctx).String())}
	if !requestID.IsNil() {
		attrs = append(attrs, attribute.String("blood_request.id", requestID.String()))
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func requireActor(ctx context.Context) (id.UserID, error) {
	actor := requestcontext.UserID(ctx)
	if actor.IsNil() {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

// wrapRequestErr translates store sentinels. Coded errors pass through.
func wrapRequestErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "blood request not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "blood request was modified concurrently")
	case errors.Is(err, sentinel.ErrUnavailable):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
