package coordinator

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kanban-sync/protocol"
)

const (
	tracerName       = "kanban-sync/coordinator"
	applySpanName    = "coordinator.apply"
	applyEventName   = "board.mutation"
	applyEventDomain = "kanban"
)

type applyMetrics struct {
	logger          *log.Logger
	span            trace.Span
	start           time.Time
	boardID         string
	event           string
	version         uint64
	persistDuration time.Duration
	duplicate       bool
	errorStage      string
}

func newApplyMetrics(ctx context.Context, logger *log.Logger, boardID, event string) (*applyMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, applySpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &applyMetrics{
		logger:  logger,
		span:    span,
		start:   time.Now(),
		boardID: boardID,
		event:   event,
	}, ctx
}

func (m *applyMetrics) ObservePersist(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.persistDuration = duration
}

func (m *applyMetrics) SetVersion(v uint64) {
	m.version = v
}

func (m *applyMetrics) SetDuplicate() {
	m.duplicate = true
}

func (m *applyMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the span and emits one observability.event record mirroring the
// span event, so log-only deployments see the same attributes.
func (m *applyMetrics) Log(err error) {
	if m == nil {
		return
	}

	severityText, severityNumber := severityFor(err)
	attrs := []attribute.KeyValue{
		attribute.String("kanban.board_id", m.boardID),
		attribute.String("kanban.event", m.event),
		attribute.Int64("kanban.version", int64(m.version)),
		attribute.Bool("kanban.duplicate", m.duplicate),
		attribute.Float64("kanban.total_ms", durationToMillis(time.Since(m.start))),
	}
	if m.persistDuration > 0 {
		attrs = append(attrs, attribute.Float64("kanban.persist_ms", durationToMillis(m.persistDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("kanban.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs,
			attribute.String("error.message", err.Error()),
			attribute.String("error.code", protocol.CodeFor(err)),
		)
	}

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", applyEventName),
		attribute.String("event.domain", applyEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)

	m.span.SetAttributes(attrs...)
	m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
	if err != nil {
		m.span.SetStatus(codes.Error, err.Error())
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	traceID := m.span.SpanContext().TraceID()
	m.span.End()

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      applyEventName,
		"event.domain":    applyEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrMap,
	}
	if traceID.IsValid() {
		fields["trace_id"] = traceID.String()
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

// severityFor maps rejected client intents to WARN and everything else that
// failed to ERROR.
func severityFor(err error) (string, int) {
	if err == nil {
		return "INFO", 9
	}
	if protocol.CodeFor(err) == protocol.CodeInternal {
		return "ERROR", 17
	}
	return "WARN", 13
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
