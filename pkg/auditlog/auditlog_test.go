package auditlog

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLogrusSink_EmitFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	sink := NewLogrusSink(logger)
	sink.Emit(Event{
		UserID:   "alice",
		KeyID:    "key-1",
		Action:   ActionCreateKey,
		Success:  true,
		Duration: 250 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, `"user_id":"alice"`)
	assert.Contains(t, out, `"key_id":"key-1"`)
	assert.Contains(t, out, `"action":"create_key"`)
	assert.Contains(t, out, `"success":true`)
	assert.Contains(t, out, `"duration_ms":250`)
}

func TestLogrusSink_FailureUsesWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	sink := NewLogrusSink(logger)
	sink.Emit(Event{
		UserID:    "alice",
		Action:    ActionDecryptDocument,
		Success:   false,
		ErrorKind: "authentication",
	})

	out := buf.String()
	assert.Contains(t, out, `"level":"warning"`)
	assert.Contains(t, out, `"error_kind":"authentication"`)
	assert.NotContains(t, out, "key_id")
}

func TestRecordingSink(t *testing.T) {
	var sink RecordingSink
	sink.Emit(Event{Action: ActionRotateKey, Success: true})
	sink.Emit(Event{Action: ActionRecoverKey, Success: false})

	assert.Len(t, sink.Events, 2)
	assert.Equal(t, ActionRotateKey, sink.Events[0].Action)
	assert.False(t, sink.Events[1].Success)
}
