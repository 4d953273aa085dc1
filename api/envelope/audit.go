// Package envelope - Audit logging for priced requests
package envelope

import (
	"time"

	"go.uber.org/zap"

	"pool-boq/internal/logging"
)

// AuditEntry records one priced request
type AuditEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	InputHash  string    `json:"input_hash"`
	Shape      string    `json:"shape,omitempty"`
	RequestID  string    `json:"request_id"`
	ClientIP   string    `json:"client_ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	TotalTTC   string    `json:"total_ttc,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// AuditLogger logs audit entries
type AuditLogger interface {
	Log(entry AuditEntry) error
}

// ZapAuditLogger writes audit entries as structured log lines
type ZapAuditLogger struct {
	logger *zap.Logger
}

// NewZapAuditLogger creates an audit logger on the "audit" child of logger
func NewZapAuditLogger(logger *zap.Logger) *ZapAuditLogger {
	return &ZapAuditLogger{logger: logging.OrNop(logger).Named("audit")}
}

// Log logs an audit entry
func (l *ZapAuditLogger) Log(entry AuditEntry) error {
	fields := []zap.Field{
		zap.Time("timestamp", entry.Timestamp),
		zap.String("input_hash", entry.InputHash),
		zap.String("shape", entry.Shape),
		zap.String("request_id", entry.RequestID),
		zap.String("client_ip", entry.ClientIP),
		zap.String("user_agent", entry.UserAgent),
		zap.Int64("duration_ms", entry.DurationMs),
		zap.Bool("success", entry.Success),
	}
	if entry.TotalTTC != "" {
		fields = append(fields, zap.String("total_ttc", entry.TotalTTC))
	}
	if entry.Error != "" {
		fields = append(fields, zap.String("error", entry.Error))
	}
	l.logger.Info("quote", fields...)
	return nil
}

// CreateAuditEntry creates an audit entry from an envelope. env may be nil
// when normalization failed.
func CreateAuditEntry(env *QuoteEnvelope, requestID, clientIP, userAgent string) AuditEntry {
	entry := AuditEntry{
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		Success:   true,
	}
	if env != nil {
		entry.InputHash = env.InputHash
		entry.Shape = string(env.Dimensions.Shape)
	}
	return entry
}

// MarkFailed marks the audit entry as failed
func (e *AuditEntry) MarkFailed(err error) {
	e.Success = false
	e.Error = err.Error()
}

// SetDuration sets the duration
func (e *AuditEntry) SetDuration(d time.Duration) {
	e.DurationMs = d.Milliseconds()
}
