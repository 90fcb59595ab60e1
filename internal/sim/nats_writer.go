package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sentinel-sim/internal/config"
	"sentinel-sim/internal/logging"
	"sentinel-sim/internal/observability"
	"sentinel-sim/internal/telemetry"
)

// natsPublisher is the part of *nats.Conn the writer uses.
type natsPublisher interface {
	PublishMsg(*nats.Msg) error
}

// headerCarrier adapts nats.Header to propagation.TextMapCarrier.
type headerCarrier nats.Header

func (c headerCarrier) Get(key string) string {
	if vals := nats.Header(c).Values(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (c headerCarrier) Set(key, value string) { nats.Header(c).Set(key, value) }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// NATSWriter publishes each telemetry message on
// <prefix>.<gateway>.v1.<profile>.<node> and alerts on
// <prefix>.<gateway>.v1.alerts.<rule>. Trace context rides in the headers.
type NATSWriter struct {
	conn   natsPublisher
	closer func()
	prefix string
	tracer trace.Tracer
	log    *slog.Logger
}

// NewNATSWriter connects to cfg.URL.
func NewNATSWriter(cfg config.NATSConfig, log *slog.Logger) (*NATSWriter, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("sentinel-sim"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	w := newNATSWriter(nc, cfg.SubjectPrefix, log)
	w.closer = func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	return w, nil
}

func newNATSWriter(conn natsPublisher, prefix string, log *slog.Logger) *NATSWriter {
	if prefix == "" {
		prefix = "sentinel"
	}
	if log == nil {
		log = logging.Discard()
	}
	return &NATSWriter{
		conn:   conn,
		prefix: prefix,
		tracer: observability.Tracer(),
		log:    log.With("sink", "nats"),
	}
}

// Subject returns the subject a message is published on.
func (w *NATSWriter) Subject(m telemetry.TelemetryMessage) string {
	return strings.Join([]string{w.prefix, token(m.GatewayID), "v1", string(m.Profile), token(m.NodeID)}, ".")
}

// Write publishes a single telemetry message.
func (w *NATSWriter) Write(m telemetry.TelemetryMessage) error {
	return w.WriteBatch([]telemetry.TelemetryMessage{m})
}

// WriteBatch publishes every message under one producer span.
func (w *NATSWriter) WriteBatch(ms []telemetry.TelemetryMessage) error {
	if len(ms) == 0 {
		return nil
	}
	ctx, span := w.tracer.Start(context.Background(), "publish "+w.prefix+".telemetry",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "nats"),
			attribute.Int("messaging.batch.message_count", len(ms)),
		),
	)
	defer span.End()

	for _, m := range ms {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode %s: %w", m.NodeID, err)
		}
		if err := w.publish(ctx, w.Subject(m), data); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	w.log.Debug("published telemetry", "messages", len(ms))
	return nil
}

// WriteAlert publishes an alert.
func (w *NATSWriter) WriteAlert(a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	subject := strings.Join([]string{w.prefix, token(a.GatewayID), "v1", "alerts", string(a.Rule)}, ".")
	return w.publish(context.Background(), subject, data)
}

func (w *NATSWriter) publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: make(nats.Header)}
	msg.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Header))
	if err := w.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (w *NATSWriter) Close() error {
	if w.closer != nil {
		w.closer()
	}
	return nil
}

// token makes an id safe to use as a single subject token.
func token(id string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(id)
}
