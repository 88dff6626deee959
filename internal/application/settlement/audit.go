package settlement

import (
	"context"

	"go.uber.org/zap"
)

// ZapAuditRecorder writes audit records to the structured log. It satisfies
// the audit-sink contract for deployments where a dedicated audit service
// consumes the log stream.
type ZapAuditRecorder struct {
	logger *zap.Logger
}

// NewZapAuditRecorder creates a new ZapAuditRecorder
func NewZapAuditRecorder(logger *zap.Logger) *ZapAuditRecorder {
	return &ZapAuditRecorder{logger: logger.Named("audit")}
}

// Record emits one audit record
func (r *ZapAuditRecorder) Record(ctx context.Context, entry AuditEntry) {
	fields := []zap.Field{
		zap.String("actor", entry.Actor),
		zap.String("action", entry.Action),
		zap.String("resource_type", entry.ResourceType),
		zap.String("resource_id", entry.ResourceID),
		zap.String("risk", string(entry.Risk)),
		zap.Bool("success", entry.Success),
	}
	if entry.Before != nil {
		fields = append(fields, zap.Any("before", entry.Before))
	}
	if entry.After != nil {
		fields = append(fields, zap.Any("after", entry.After))
	}
	if entry.Error != "" {
		fields = append(fields, zap.String("error", entry.Error))
	}

	if entry.Success {
		r.logger.Info("audit", fields...)
	} else {
		r.logger.Warn("audit", fields...)
	}
}

// Ensure ZapAuditRecorder implements AuditRecorder
var _ AuditRecorder = (*ZapAuditRecorder)(nil)
