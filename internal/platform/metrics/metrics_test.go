package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_HandlerExposesCounters(t *testing.T) {
	m := New()
	m.IncAdmission("admitted")
	m.IncAdmission("queued")
	m.IncRelayed("offer")
	m.IncBackpressure()

	h := m.Handler(func() {
		m.SetConnections(3)
		m.SetRooms(1)
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `huddle_admissions_total{result="admitted"} 1`))
	assert.True(t, strings.Contains(text, `huddle_relayed_messages_total{type="offer"} 1`))
	assert.True(t, strings.Contains(text, "huddle_connections 3"))
	assert.True(t, strings.Contains(text, "huddle_rooms 1"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncRequests()
		m.IncAdmission("rejected")
		m.SetRooms(2)
	})
}
