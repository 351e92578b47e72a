package meeting

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	mu   sync.Mutex
	sent []any
}

func (l *fakeLink) Send(msg any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, msg)
	return nil
}

func (l *fakeLink) last() any {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sent) == 0 {
		return nil
	}
	return l.sent[len(l.sent)-1]
}

type fakeMesh struct {
	mu       sync.Mutex
	self     domain.UserID
	mediaErr error
	existing []domain.UserID
	joined   []domain.UserID
	left     []domain.UserID
	signals  []core.SignalMessage
}

func (m *fakeMesh) SetSelf(id domain.UserID) error { m.self = id; return nil }

func (m *fakeMesh) AcquireMedia(_, _ core.MediaSource) error { return m.mediaErr }

func (m *fakeMesh) ExistingUsers(ids []domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existing = append(m.existing, ids...)
	return nil
}

func (m *fakeMesh) UserJoined(id domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joined = append(m.joined, id)
	return nil
}

func (m *fakeMesh) UserLeft(id domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left = append(m.left, id)
	return nil
}

func (m *fakeMesh) HandleSignal(msg core.SignalMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, msg)
	return nil
}

func frame(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestController_GuestFlow(t *testing.T) {
	link, mesh := &fakeLink{}, &fakeMesh{}
	c := New(link, mesh)

	c.HandleFrame(frame(t, core.Welcome{Type: core.MsgWelcome, UserID: "G"}))
	assert.Equal(t, domain.UserID("G"), mesh.self)

	require.NoError(t, c.Join("R1", "Guest", nil, nil))
	assert.Equal(t, StateConnecting, c.State())
	assert.Equal(t, core.JoinRequest{Type: core.MsgJoinRoom, RoomID: "R1", DisplayName: "Guest"}, link.last())

	// signaling before admission never reaches the mesh
	c.HandleFrame(frame(t, core.SignalMessage{Type: core.MsgOffer, From: "X", SDP: json.RawMessage(`{}`)}))
	assert.Empty(t, mesh.signals)

	c.HandleFrame(frame(t, core.NewRoomNotice(core.MsgWaitingForHost, "R1")))
	assert.Equal(t, StateWaiting, c.State())

	c.HandleFrame(frame(t, core.NewRoomNotice(core.MsgAllowedToJoin, "R1")))
	assert.Equal(t, StateAdmitted, c.State())

	c.HandleFrame(frame(t, core.ExistingUsers{Type: core.MsgExistingUsers, RoomID: "R1", Users: []domain.UserID{"H"}}))
	assert.Equal(t, []domain.UserID{"H"}, mesh.existing)

	c.HandleFrame(frame(t, core.SignalMessage{Type: core.MsgAnswer, From: "H", SDP: json.RawMessage(`{"type":"answer","sdp":"x"}`)}))
	require.Len(t, mesh.signals, 1)
	assert.Equal(t, domain.UserID("H"), mesh.signals[0].From)

	c.HandleFrame(frame(t, core.NewUserNotice(core.MsgUserLeft, "R1", "H", "")))
	assert.Equal(t, []domain.UserID{"H"}, mesh.left)

	assert.ErrorIs(t, c.Approve("Z"), ErrNotHost)
}

func TestController_RejectedIsNotCannotJoin(t *testing.T) {
	c := New(&fakeLink{}, &fakeMesh{})
	require.NoError(t, c.Join("R1", "Guest", nil, nil))
	c.HandleFrame(frame(t, core.NewRoomNotice(core.MsgWaitingForHost, "R1")))
	c.HandleFrame(frame(t, core.NewRoomNotice(core.MsgRejected, "R1")))
	assert.Equal(t, StateRejected, c.State())

	// a late allowed-to-join cannot revive a rejected request
	c.HandleFrame(frame(t, core.NewRoomNotice(core.MsgAllowedToJoin, "R1")))
	assert.Equal(t, StateRejected, c.State())
}

func TestController_MediaFailureMeansCannotJoin(t *testing.T) {
	link := &fakeLink{}
	c := New(link, &fakeMesh{mediaErr: errors.New("camera busy")})

	err := c.Join("R1", "Guest", nil, nil)
	require.Error(t, err)
	assert.Equal(t, StateCannotJoin, c.State())
	assert.Nil(t, link.last(), "no join request without media")
}

func TestController_HostHandlesPendingList(t *testing.T) {
	link, mesh := &fakeLink{}, &fakeMesh{}
	c := New(link, mesh)
	require.NoError(t, c.Join("R1", "Host", nil, nil))
	c.HandleFrame(frame(t, core.NewRoomNotice(core.MsgAllowedToJoin, "R1")))
	c.HandleFrame(frame(t, core.ExistingUsers{Type: core.MsgExistingUsers, RoomID: "R1", Users: []domain.UserID{}}))
	c.HandleFrame(frame(t, core.RoleNotice{Type: core.MsgRole, RoomID: "R1", Role: domain.RoleHost}))

	c.HandleFrame(frame(t, core.NewUserNotice(core.MsgUserWaiting, "R1", "G1", "one")))
	c.HandleFrame(frame(t, core.NewUserNotice(core.MsgUserWaiting, "R1", "G2", "two")))
	require.Len(t, c.Pending(), 2)

	require.NoError(t, c.Approve("G1"))
	assert.Equal(t, core.DecisionRequest{Type: core.MsgApproveUser, RoomID: "R1", UserID: "G1"}, link.last())
	require.NoError(t, c.Reject("G2"))
	assert.Equal(t, core.DecisionRequest{Type: core.MsgRejectUser, RoomID: "R1", UserID: "G2"}, link.last())
	assert.Empty(t, c.Pending())

	c.HandleFrame(frame(t, core.NewUserNotice(core.MsgUserJoined, "R1", "G1", "one")))
	assert.Equal(t, []domain.UserID{"G1"}, mesh.joined)
}

func TestController_JoinValidatesAndGuardsReentry(t *testing.T) {
	c := New(&fakeLink{}, &fakeMesh{})
	assert.ErrorIs(t, c.Join("R1", "  ", nil, nil), domain.ErrDisplayNameEmpty)
	require.NoError(t, c.Join("R1", "Guest", nil, nil))
	assert.ErrorIs(t, c.Join("R1", "Guest", nil, nil), ErrAlreadyJoined)
}

func TestController_ChatAndLeave(t *testing.T) {
	link := &fakeLink{}
	c := New(link, &fakeMesh{})
	assert.ErrorIs(t, c.Chat("hi"), ErrNotJoined)

	require.NoError(t, c.Join("R1", "Guest", nil, nil))
	c.HandleFrame(frame(t, core.NewRoomNotice(core.MsgAllowedToJoin, "R1")))
	require.NoError(t, c.Chat("hi"))
	assert.Equal(t, core.ChatRequest{Type: core.MsgChat, RoomID: "R1", Text: "hi"}, link.last())

	c.HandleFrame(frame(t, core.ChatMessage{Type: core.MsgChat, RoomID: "R1", From: "H", Name: "host", Text: "hello", Time: 1}))
	var chat Notice
	for n := range c.Notices() {
		if n.Kind == NoticeChat {
			chat = n
			break
		}
	}
	assert.Equal(t, "hello", chat.Text)

	require.NoError(t, c.Leave())
	assert.Equal(t, StateLeft, c.State())
	assert.Equal(t, core.RoomRequest{Type: core.MsgLeaveRoom, RoomID: "R1"}, link.last())
}

func TestController_DropsGarbage(t *testing.T) {
	c := New(&fakeLink{}, &fakeMesh{})
	assert.NotPanics(t, func() {
		c.HandleFrame([]byte("not json"))
		c.HandleFrame([]byte(`{"type":"mystery"}`))
		c.HandleFrame([]byte(`{"type":"existing-users","users":"x"}`))
	})
}
