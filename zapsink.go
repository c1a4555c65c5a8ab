package authcore

import (
	"context"

	"go.uber.org/zap"
)

// zapAuditSink writes audit events through the engine logger. Used as
// the fallback sink when audit is enabled without an explicit sink.
type zapAuditSink struct {
	logger *zap.Logger
}

func newZapAuditSink(logger *zap.Logger) *zapAuditSink {
	return &zapAuditSink{logger: logger}
}

func (s *zapAuditSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.logger == nil {
		return
	}

	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.SessionID != "" {
		fields = append(fields, zap.String("token_id", event.SessionID))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.Location != "" {
		fields = append(fields, zap.String("location", event.Location))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String("meta_"+k, v))
	}

	if event.Success {
		s.logger.Info("audit", fields...)
	} else {
		s.logger.Warn("audit", fields...)
	}
}
