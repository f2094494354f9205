package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"runtime/debug"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"remnashop/internal/db"
	"remnashop/internal/gateways"
	"remnashop/internal/metrics"
)

const (
	maxWebhookBody     = 1 << 20
	webhookErrorLimit  = 1024
	operatorErrorLimit = 512
	unknownGatewayType = "unknown"
)

// GatewayResolver is implemented by *PaymentService.
type GatewayResolver interface {
	Resolve(ctx context.Context, t db.PaymentGatewayType) (gateways.Gateway, error)
}

// PanicError carries a panic recovered while handling a webhook.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// WebhookService receives payment gateway callbacks, keeps an audit row for
// each of them and queues the status change for the transaction worker.
type WebhookService struct {
	logs     *db.WebhookLogRepo
	gateways GatewayResolver
	queue    TaskQueue
	notifier Notifier
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewWebhookService(logs *db.WebhookLogRepo, resolver GatewayResolver, queue TaskQueue, notifier Notifier, log *zap.Logger, m *metrics.Metrics) *WebhookService {
	return &WebhookService{logs: logs, gateways: resolver, queue: queue, notifier: notifier, log: log, metrics: m}
}

// Handler serves POST /api/v1/webhooks/payments/{gateway_type}.
func (s *WebhookService) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawType := chi.URLParam(r, "gateway_type")
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			w.WriteHeader(s.unreadable(r.Context(), rawType, err))
			return
		}
		w.WriteHeader(s.Process(r.Context(), rawType, body, r.Header))
	}
}

// unreadable records a webhook whose body could not be read, with an empty
// payload, and fails it like any other pipeline error.
func (s *WebhookService) unreadable(ctx context.Context, rawType string, readErr error) int {
	start := time.Now()
	label := unknownGatewayType
	if t, err := db.ParseGatewayType(rawType); err == nil {
		label = string(t)
	}
	defer func() {
		s.metrics.WebhookProcessingTime.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	logID := s.createLog(ctx, rawType, nil)
	return s.fail(ctx, logID, label, fmt.Errorf("read webhook body: %w", readErr))
}

// Process runs one webhook through the pipeline and returns the HTTP status
// to answer with. Every failure ends here as a status code.
func (s *WebhookService) Process(ctx context.Context, rawType string, body []byte, header http.Header) int {
	start := time.Now()
	label := unknownGatewayType
	defer func() {
		s.metrics.WebhookProcessingTime.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	logID := s.createLog(ctx, rawType, body)

	gatewayType, err := db.ParseGatewayType(rawType)
	if err != nil {
		s.log.Warn("webhook for unknown gateway", zap.String("gateway_type", rawType))
		s.updateLog(ctx, logID, db.WebhookLogUpdate{StatusCode: http.StatusNotFound})
		return http.StatusNotFound
	}
	label = string(gatewayType)

	paymentID, status, err := s.dispatch(ctx, gatewayType, gateways.WebhookRequest{Body: body, Header: header})
	if errors.Is(err, ErrGatewayUnavailable) {
		s.log.Warn("webhook for disabled gateway", zap.String("gateway_type", label))
		s.updateLog(ctx, logID, db.WebhookLogUpdate{StatusCode: http.StatusNotFound})
		return http.StatusNotFound
	}
	if err != nil {
		return s.fail(ctx, logID, label, err)
	}

	s.log.Info("webhook accepted",
		zap.String("gateway_type", label),
		zap.String("payment_id", paymentID.String()),
		zap.String("status", string(status)))
	s.updateLog(ctx, logID, db.WebhookLogUpdate{StatusCode: http.StatusOK, PaymentID: &paymentID})
	return http.StatusOK
}

func (s *WebhookService) dispatch(ctx context.Context, t db.PaymentGatewayType, req gateways.WebhookRequest) (paymentID uuid.UUID, status db.TransactionStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	gw, err := s.gateways.Resolve(ctx, t)
	if err != nil {
		return uuid.Nil, "", err
	}
	paymentID, status, err = gw.HandleWebhook(ctx, req)
	if err != nil {
		return uuid.Nil, "", err
	}
	if err := s.queue.Enqueue(ctx, TaskProcessTransaction, paymentID.String(), string(status)); err != nil {
		return uuid.Nil, "", fmt.Errorf("enqueue %s: %w", TaskProcessTransaction, err)
	}
	return paymentID, status, nil
}

func (s *WebhookService) fail(ctx context.Context, logID uint, label string, err error) int {
	s.metrics.WebhookErrors.WithLabelValues(label).Inc()

	fields := []zap.Field{zap.String("gateway_type", label), zap.Error(err)}
	var p *PanicError
	if errors.As(err, &p) {
		fields = append(fields, zap.ByteString("stacktrace", p.Stack))
	} else {
		fields = append(fields, zap.Stack("stacktrace"))
	}
	s.log.Error("webhook processing failed", fields...)

	summary := describeError(err)
	stored := truncate(summary, webhookErrorLimit)
	s.updateLog(ctx, logID, db.WebhookLogUpdate{StatusCode: http.StatusInternalServerError, Error: &stored})
	s.notifier.NotifyOperator(context.WithoutCancel(ctx),
		fmt.Sprintf("Ошибка вебхука %s: %s", label, truncate(summary, operatorErrorLimit)))
	return http.StatusInternalServerError
}

// createLog writes the audit row and returns its id, or 0 if it could not
// be written.
func (s *WebhookService) createLog(ctx context.Context, rawType string, body []byte) uint {
	entry := &db.WebhookLog{GatewayType: rawType, Payload: webhookPayload(body)}
	if !bestEffort(ctx, s.log, s.metrics, "create_webhook_log", func(ctx context.Context) error {
		return s.logs.Create(ctx, entry)
	}) {
		return 0
	}
	return entry.ID
}

func (s *WebhookService) updateLog(ctx context.Context, id uint, upd db.WebhookLogUpdate) {
	if id == 0 {
		return
	}
	bestEffort(ctx, s.log, s.metrics, "update_webhook_log", func(ctx context.Context) error {
		return s.logs.Update(ctx, id, upd)
	})
}

// webhookPayload keeps JSON bodies as they are and stores anything else as
// a JSON string.
func webhookPayload(body []byte) datatypes.JSON {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	raw, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// describeError prefixes the message with the type name of the innermost
// wrapped error.
func describeError(err error) string {
	root := err
	for next := errors.Unwrap(root); next != nil; next = errors.Unwrap(root) {
		root = next
	}
	t := reflect.TypeOf(root)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" || !unicode.IsUpper([]rune(name)[0]) {
		name = "Error"
	}
	return name + ": " + err.Error()
}
