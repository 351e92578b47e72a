package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/hub"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/platform/metrics"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Mode:           "test",
		StaticPath:     t.TempDir(),
		Secret:         "test-secret",
		ReadLimit:      4096,
		PingPeriod:     time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
		SendBuffer:     8,
		JoinRateLimit:  5,
		JoinRateWindow: time.Second,
	}
}

func setup(t *testing.T) (*gin.Engine, *hub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := hub.New(app.NewRegistry(), app.NewRoomManager(8), app.SimplePolicy{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return SetupRouter(ctx, testConfig(t), h, metrics.New()), h
}

func TestHealthz(t *testing.T) {
	r, _ := setup(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Contains(t, w.Header().Get("Set-Cookie"), "HuddleSessions=")
}

func TestMeetingHistory(t *testing.T) {
	r, h := setup(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/meetings/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	h.Connect("H", nopConn{}, "", nil)
	_, err := h.Join("standup", "Hana", "H")
	require.NoError(t, err)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/meetings/standup", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var hist domain.History
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	assert.Equal(t, domain.RoomID("standup"), hist.RoomID)
	require.Len(t, hist.Users, 1)
	assert.Equal(t, "Hana", hist.Users[0].DisplayName)
	assert.Nil(t, hist.Users[0].LeftAt)

	h.Disconnect("H")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/meetings/standup", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist.Users, 1)
	assert.NotNil(t, hist.Users[0].LeftAt)
}

func TestRoomList(t *testing.T) {
	r, h := setup(t)
	h.Connect("H", nopConn{}, "", nil)
	h.Connect("G", nopConn{}, "", nil)
	_, _ = h.Join("r1", "Hana", "H")
	_, _ = h.Join("r1", "Gil", "G")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Rooms []core.RoomInfo `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Rooms, 1)
	assert.Equal(t, domain.UserID("H"), body.Rooms[0].Host)
	assert.Equal(t, 1, body.Rooms[0].Participants)
	assert.Equal(t, 1, body.Rooms[0].Pending)
}

func TestMetricsEndpoint(t *testing.T) {
	r, h := setup(t)
	h.Connect("H", nopConn{}, "", nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "huddle_connections 1")
}

func TestMembershipEventStream(t *testing.T) {
	r, h := setup(t)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/meetings/r1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := bufio.NewScanner(resp.Body)
	nextEvent := func() (string, string) {
		var event string
		for lines.Scan() {
			line := strings.TrimSpace(lines.Text())
			switch {
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				return event, strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
		return "", ""
	}

	event, _ := nextEvent()
	require.Equal(t, "ready", event)

	h.Connect("H", nopConn{}, "", nil)
	_, err = h.Join("r1", "Hana", "H")
	require.NoError(t, err)

	event, data := nextEvent()
	require.Equal(t, "membership", event)
	var ev core.MembershipEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, core.MemberJoined, ev.Kind)
	assert.Equal(t, domain.UserID("H"), ev.UserID)
}
