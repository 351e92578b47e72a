package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	to  domain.UserID
	msg any
}

type recordingOutbox struct {
	mu     sync.Mutex
	sent   []sent
	events []MembershipEvent
}

func (o *recordingOutbox) Send(to domain.UserID, msg any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sent{to: to, msg: msg})
}

func (o *recordingOutbox) Emit(ev MembershipEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingOutbox) types(to domain.UserID) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, s := range o.sent {
		if s.to == to {
			out = append(out, msgType(s.msg))
		}
	}
	return out
}

func (o *recordingOutbox) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = nil
	o.events = nil
}

func msgType(m any) string {
	switch v := m.(type) {
	case RoomNotice:
		return v.Type
	case UserNotice:
		return v.Type
	case ExistingUsers:
		return v.Type
	case ChatMessage:
		return v.Type
	case RoleNotice:
		return v.Type
	}
	return "?"
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return t }
}

func TestRoom_FirstJoinerBecomesHost(t *testing.T) {
	r := newRoom("R1", fixedClock())
	out := &recordingOutbox{}

	adm, err := r.Join("H", "host", "", out)
	require.NoError(t, err)
	assert.Equal(t, domain.Admitted, adm)
	assert.Equal(t, []string{MsgAllowedToJoin, MsgExistingUsers, MsgRole}, out.types("H"))
	assert.Equal(t, domain.RoleGuest, r.Role())
	assert.Equal(t, domain.UserID("H"), r.Info().Host)

	roster := out.sent[1].msg.(ExistingUsers)
	assert.Empty(t, roster.Users)
}

func TestRoom_GuestQueuedAndHostNotified(t *testing.T) {
	r := newRoom("R1", fixedClock())
	out := &recordingOutbox{}
	_, _ = r.Join("H", "host", "", out)
	out.reset()

	adm, err := r.Join("G", "guest", "", out)
	require.NoError(t, err)
	assert.Equal(t, domain.Queued, adm)
	assert.Equal(t, []string{MsgWaitingForHost}, out.types("G"))
	assert.Equal(t, []string{MsgUserWaiting}, out.types("H"))
	assert.True(t, r.IsPending("G"))
	assert.False(t, r.IsActive("G"))
	require.Len(t, out.events, 1)
	assert.Equal(t, MemberQueued, out.events[0].Kind)
}

func TestRoom_ApproveSendsRosterBeforeJoinNotice(t *testing.T) {
	r := newRoom("R1", fixedClock())
	out := &recordingOutbox{}
	_, _ = r.Join("H", "host", "", out)
	_, _ = r.Join("G", "guest", "", out)
	out.reset()

	require.True(t, r.Decide("H", "G", domain.Approve, out))

	require.Len(t, out.sent, 3)
	assert.Equal(t, sent{to: "G", msg: NewRoomNotice(MsgAllowedToJoin, "R1")}, out.sent[0])
	assert.Equal(t, domain.UserID("G"), out.sent[1].to)
	assert.Equal(t, []domain.UserID{"H"}, out.sent[1].msg.(ExistingUsers).Users)
	assert.Equal(t, domain.UserID("H"), out.sent[2].to)
	assert.Equal(t, MsgUserJoined, out.sent[2].msg.(UserNotice).Type)

	assert.True(t, r.IsActive("G"))
	assert.False(t, r.IsPending("G"))
}

func TestRoom_RejectIsFinalForConnection(t *testing.T) {
	r := newRoom("R1", fixedClock())
	out := &recordingOutbox{}
	_, _ = r.Join("H", "host", "", out)
	_, _ = r.Join("G", "guest", "", out)
	out.reset()

	require.True(t, r.Decide("H", "G", domain.Reject, out))
	assert.Equal(t, []string{MsgRejected}, out.types("G"))
	assert.Empty(t, out.types("H"))

	out.reset()
	adm, err := r.Join("G", "guest", "", out)
	require.NoError(t, err)
	assert.Equal(t, domain.Rejected, adm)
	assert.Equal(t, []string{MsgRejected}, out.types("G"))
	assert.Empty(t, out.types("H"), "host is not bothered by a retry")
}

func TestRoom_NonHostDecisionIgnored(t *testing.T) {
	r := newRoom("R1", fixedClock())
	out := &recordingOutbox{}
	_, _ = r.Join("H", "host", "", out)
	_, _ = r.Join("G1", "g1", "", out)
	_ = r.Decide("H", "G1", domain.Approve, out)
	_, _ = r.Join("G2", "g2", "", out)
	out.reset()

	assert.False(t, r.Decide("G1", "G2", domain.Approve, out))
	assert.Empty(t, out.sent)
	assert.True(t, r.IsPending("G2"))
}

func TestRoom_DecideUnknownTarget(t *testing.T) {
	r := newRoom("R1", fixedClock())
	out := &recordingOutbox{}
	_, _ = r.Join("H", "host", "", out)
	assert.False(t, r.Decide("H", "nobody", domain.Approve, out))
}

func TestRoom_JoinIsIdempotent(t *testing.T) {
	r := newRoom("R1", fixedClock())
	out := &recordingOutbox{}
	_, _ = r.Join("H", "host", "", out)
	_, _ = r.Join("G", "guest", "", out)
	out.reset()

	adm, _ := r.Join("H", "host", "", out)
	assert.Equal(t, domain.Admitted, adm)
	adm, _ = r.Join("G", "guest", "", out)
	assert.Equal(t, domain.Queued, adm)
	assert.Empty(t, out.sent)
	assert.Equal(t, RoomInfo{ID: "R1", Host: "H", Participants: 1, Pending: 1}, r.Info())
}

func TestRoom_HostLeaveKeepsPendingAndRoomHostless(t *testing.T) {
	r := newRoom("R1", fixedClock())
	out := &recordingOutbox{}
	_, _ = r.Join("H", "host", "", out)
	_, _ = r.Join("A", "a", "", out)
	_ = r.Decide("H", "A", domain.Approve, out)
	_, _ = r.Join("P", "p", "", out)
	out.reset()

	require.True(t, r.Leave("H", out))
	assert.Equal(t, []string{MsgUserLeft, MsgHostLeft}, out.types("A"))
	assert.Empty(t, out.types("P"))
	assert.Equal(t, domain.RoleHost, r.Role())
	assert.True(t, r.IsPending("P"))

	// the next requester becomes host and inherits the queue
	out.reset()
	adm, err := r.Join("N", "new", "", out)
	require.NoError(t, err)
	assert.Equal(t, domain.Admitted, adm)
	assert.Equal(t, []string{MsgAllowedToJoin, MsgExistingUsers, MsgRole, MsgUserWaiting}, out.types("N"))
	assert.Equal(t, []string{MsgUserJoined}, out.types("A"))
	assert.True(t, r.Decide("N", "P", domain.Approve, out))
}

func TestRoom_PendingLeaveIsSilent(t *testing.T) {
	r := newRoom("R1", fixedClock())
	out := &recordingOutbox{}
	_, _ = r.Join("H", "host", "", out)
	_, _ = r.Join("G", "guest", "", out)
	out.reset()

	require.True(t, r.Leave("G", out))
	assert.Empty(t, out.sent)
	assert.False(t, r.IsPending("G"))
	assert.False(t, r.Leave("G", out))
}

func TestRoom_HistoryAndClose(t *testing.T) {
	r := newRoom("R1", fixedClock())
	out := &recordingOutbox{}
	_, _ = r.Join("H", "host", "", out)
	_, _ = r.Join("G", "guest", "", out)
	_ = r.Decide("H", "G", domain.Approve, out)

	assert.False(t, r.TryClose())
	_ = r.Leave("G", out)
	_ = r.Leave("H", out)
	assert.True(t, r.TryClose())

	_, err := r.Join("X", "x", "", out)
	assert.ErrorIs(t, err, ErrRoomClosed)

	h := r.History()
	require.Len(t, h.Users, 2)
	assert.Equal(t, domain.UserID("H"), h.Users[0].ID)
	assert.True(t, h.Users[0].IsHost)
	assert.NotNil(t, h.Users[0].LeftAt)
	assert.NotNil(t, h.Users[1].LeftAt)
}

func TestRoom_ChatReachesEveryActiveMember(t *testing.T) {
	r := newRoom("R1", fixedClock())
	out := &recordingOutbox{}
	_, _ = r.Join("H", "host", "", out)
	_, _ = r.Join("G", "guest", "", out)
	out.reset()

	assert.False(t, r.Chat("G", "hi", out), "pending members cannot chat")
	require.True(t, r.Chat("H", "hello", out))
	assert.Equal(t, []string{MsgChat}, out.types("H"))
	assert.Empty(t, out.types("G"))
}

func TestRoom_ConcurrentJoinsSingleHost(t *testing.T) {
	r := newRoom("R1", time.Now)
	out := &recordingOutbox{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = r.Join(domain.UserID(fmt.Sprintf("u%d", i)), "x", "", out)
		}(i)
	}
	wg.Wait()
	info := r.Info()
	assert.Equal(t, 1, info.Participants)
	assert.Equal(t, 49, info.Pending)
	assert.NotEmpty(t, info.Host)
}
