package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerCarriesAppName(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "json", "onboard")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("step", "create-account").Info("step done")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "onboard", line["app"])
	assert.Equal(t, "create-account", line["step"])
	assert.Equal(t, "step done", line["msg"])
}

func TestLoggerFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "chatty", "text", "")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.Contains(t, buf.String(), "Invalid log level 'chatty'")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.ObserveSaga("employee", OutcomeSuccess, 10*time.Millisecond)
	m.ObserveSaga("employee", OutcomeCompensated, time.Millisecond)
	m.ObserveSaga("employee", OutcomeSuccess, time.Millisecond)
	m.ObserveUndo("create-account", nil)
	m.ObserveUndo("create-name", errors.New("gone"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sagas.WithLabelValues("employee", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sagas.WithLabelValues("employee", OutcomeCompensated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.compensations.WithLabelValues("create-name", ResultError)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "registering twice fails")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSaga("employee", OutcomeSuccess, time.Second)
	m.ObserveUndo("create-name", nil)
}
