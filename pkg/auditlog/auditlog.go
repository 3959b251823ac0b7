// Package auditlog emits one structured audit event per crypto operation to
// an external audit sink. Events carry operation metadata only; key
// material, passwords, and plaintext never appear in an event. Retention and
// compliance policy belong to the sink, not to this subsystem.
package auditlog

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Event is a single audit record.
type Event struct {
	UserID    string
	KeyID     string
	Action    string
	Success   bool
	ErrorKind string
	Duration  time.Duration
}

// Sink receives audit events. Emitting must never fail the operation being
// audited.
type Sink interface {
	Emit(Event)
}

// Action names emitted by the subsystem.
const (
	ActionCreateKey          = "create_key"
	ActionRotateKey          = "rotate_key"
	ActionDeactivateKey      = "deactivate_key"
	ActionDeriveKey          = "derive_key"
	ActionValidateEncryption = "validate_encryption"
	ActionEncryptDocument    = "encrypt_document"
	ActionDecryptDocument    = "decrypt_document"
	ActionCreateEscrow       = "create_escrow"
	ActionRecoverKey         = "recover_key"
)

// LogrusSink writes each event as one structured log entry.
type LogrusSink struct {
	Logger *logrus.Logger
}

func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogrusSink{Logger: logger}
}

func (s *LogrusSink) Emit(ev Event) {
	fields := logrus.Fields{
		"user_id":     ev.UserID,
		"action":      ev.Action,
		"success":     ev.Success,
		"duration_ms": ev.Duration.Milliseconds(),
	}
	if ev.KeyID != "" {
		fields["key_id"] = ev.KeyID
	}
	if ev.ErrorKind != "" {
		fields["error_kind"] = ev.ErrorKind
	}

	entry := s.Logger.WithFields(fields)
	if ev.Success {
		entry.Info("crypto audit")
	} else {
		entry.Warn("crypto audit")
	}
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// RecordingSink collects events for tests.
type RecordingSink struct {
	Events []Event
}

func (s *RecordingSink) Emit(ev Event) {
	s.Events = append(s.Events, ev)
}
