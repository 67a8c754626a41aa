package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFieldsAndLocation(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.InfoLevel)

	log.Info("serving", map[string]interface{}{"port": 8000})

	out := buf.String()
	assert.Contains(t, out, "msg=serving")
	assert.Contains(t, out, "port=8000")
	assert.Contains(t, out, "logger_test.go:")
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.InfoLevel)

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	require.NoError(t, log.SetLevel("debug"))
	log.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
	assert.Equal(t, "debug", log.Level())
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	log := New(&bytes.Buffer{}, logrus.InfoLevel)
	assert.Error(t, log.SetLevel("verbose"))
	assert.Equal(t, "info", log.Level())
}

func TestContextLoggerAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, logrus.InfoLevel)

	ctx := WithRequestID(context.Background(), "req-42")
	log.WithContext(ctx).Info("request served", map[string]interface{}{"status": 200})

	out := buf.String()
	assert.Contains(t, out, "request_id=req-42")
	assert.Contains(t, out, "status=200")
	assert.Equal(t, "req-42", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
}
