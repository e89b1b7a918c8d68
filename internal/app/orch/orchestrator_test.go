package orch

import (
	"errors"
	"io"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/dkeye/CodeSync/internal/app"
	"github.com/dkeye/CodeSync/internal/core"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/dkeye/CodeSync/internal/metrics"
	"github.com/dkeye/CodeSync/internal/protocol"
)

type received struct {
	Type    protocol.Type   `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type fakeConn struct {
	mu     sync.Mutex
	frames []received
}

func (c *fakeConn) TrySend(f core.Frame) error {
	var r received
	if err := json.Unmarshal(f, &r); err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, r)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) all() []received {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]received(nil), c.frames...)
}

func (c *fakeConn) ofType(t protocol.Type) []received {
	var out []received
	for _, r := range c.all() {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func newOrch() *Orchestrator {
	return New(app.NewRegistry(), app.DropPolicy{}, nil)
}

func mustJoin(t *testing.T, o *Orchestrator, sid, room, name string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	if err := o.Join(core.SessionID(sid), conn, protocol.Join{RoomID: room, DisplayName: name}); err != nil {
		t.Fatalf("join %s: %v", sid, err)
	}
	return conn
}

func userOf(t *testing.T, r received) domain.Presence {
	t.Helper()
	var p protocol.UserPayload
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		t.Fatalf("decode user payload: %v", err)
	}
	return p.User
}

func TestJoinAcceptedAndAnnounced(t *testing.T) {
	o := newOrch()
	a := mustJoin(t, o, "a", "R", "alice")
	b := mustJoin(t, o, "b", "R", "bob")

	acc := b.ofType(protocol.JoinAccepted)
	if len(acc) != 1 {
		t.Fatalf("b join-accepted count = %d", len(acc))
	}
	var p protocol.JoinAcceptedPayload
	if err := json.Unmarshal(acc[0].Payload, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.User.ConnectionID != "b" || len(p.Users) != 2 {
		t.Errorf("join-accepted = %+v", p)
	}
	if p.User.Status != domain.StatusOnline || p.User.Typing || p.User.CursorPosition != 0 || p.User.CurrentFileID != nil {
		t.Errorf("new record not at defaults: %+v", p.User)
	}

	joined := a.ofType(protocol.UserJoined)
	if len(joined) != 1 || userOf(t, joined[0]).ConnectionID != "b" {
		t.Errorf("a user-joined = %+v", joined)
	}
	if n := len(b.ofType(protocol.UserJoined)); n != 0 {
		t.Errorf("joiner saw %d user-joined", n)
	}
}

func TestJoinUsernameExists(t *testing.T) {
	o := newOrch()
	a := mustJoin(t, o, "a", "R", "alice")
	a.reset()

	b := &fakeConn{}
	err := o.Join("b", b, protocol.Join{RoomID: "R", DisplayName: "alice"})
	if !errors.Is(err, app.ErrNameTaken) {
		t.Fatalf("err = %v, want ErrNameTaken", err)
	}
	got := b.all()
	if len(got) != 1 || got[0].Type != protocol.UsernameExists {
		t.Errorf("b received %+v, want one username-exists", got)
	}
	if len(a.all()) != 0 {
		t.Errorf("existing member notified of rejected join: %+v", a.all())
	}
	if members := o.Registry.ListRoom("R"); len(members) != 1 || members[0].ConnectionID != "a" {
		t.Errorf("room listing = %+v", members)
	}
}

func TestJoinValidation(t *testing.T) {
	tests := []struct {
		name string
		req  protocol.Join
		want error
	}{
		{"empty name", protocol.Join{RoomID: "R", DisplayName: "  "}, domain.ErrUsernameEmpty},
		{"empty room", protocol.Join{RoomID: "", DisplayName: "alice"}, domain.ErrRoomIDEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrch()
			conn := &fakeConn{}
			if err := o.Join("a", conn, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if got := conn.ofType(protocol.Error); len(got) != 1 {
				t.Errorf("error replies = %d", len(got))
			}
			if o.Registry.Len() != 0 {
				t.Error("registry mutated by invalid join")
			}
		})
	}
}

func TestJoinTwiceRejected(t *testing.T) {
	o := newOrch()
	a := mustJoin(t, o, "a", "R", "alice")
	if err := o.Join("a", a, protocol.Join{RoomID: "R2", DisplayName: "alice"}); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("err = %v, want ErrAlreadyJoined", err)
	}
	if room, _ := o.Registry.RoomOf("a"); room != "R" {
		t.Errorf("room changed to %q", room)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	o := newOrch()
	a := mustJoin(t, o, "a", "R", "alice")
	b := mustJoin(t, o, "b", "R", "bob")
	a.reset()
	b.reset()

	if !o.Disconnect("a") {
		t.Fatal("first disconnect reported false")
	}
	if o.Disconnect("a") {
		t.Fatal("second disconnect reported true")
	}
	got := b.ofType(protocol.UserDisconnected)
	if len(got) != 1 || userOf(t, got[0]).ConnectionID != "a" {
		t.Errorf("b user-disconnected = %+v", got)
	}
	if len(a.all()) != 0 {
		t.Error("leaving connection received its own disconnect")
	}
	if _, ok := o.Registry.Find("a"); ok {
		t.Error("a still registered")
	}
}

func TestDisconnectCarriesLastKnownRecord(t *testing.T) {
	o := newOrch()
	mustJoin(t, o, "a", "R", "alice")
	b := mustJoin(t, o, "b", "R", "bob")
	o.TypingStart("a", protocol.Typing{CursorPosition: 12})
	b.reset()

	o.Disconnect("a")
	got := b.ofType(protocol.UserDisconnected)
	if len(got) != 1 {
		t.Fatalf("user-disconnected count = %d", len(got))
	}
	if p := userOf(t, got[0]); !p.Typing || p.CursorPosition != 12 {
		t.Errorf("record = %+v, want typing at 12", p)
	}
	for _, m := range o.Registry.ListRoom("R") {
		if m.ConnectionID == "a" {
			t.Error("room listing still contains a")
		}
	}
}

func TestStatusChange(t *testing.T) {
	o := newOrch()
	a := mustJoin(t, o, "a", "R", "alice")
	b := mustJoin(t, o, "b", "R", "bob")
	a.reset()
	b.reset()

	o.SetStatus("a", false)
	p, _ := o.Registry.Find("a")
	if p.Status != domain.StatusOffline {
		t.Errorf("status = %s", p.Status)
	}
	other, _ := o.Registry.Find("b")
	if other.Status != domain.StatusOnline {
		t.Error("status change leaked into b")
	}
	got := b.ofType(protocol.UserOffline)
	if len(got) != 1 {
		t.Fatalf("b user-offline = %d", len(got))
	}
	var cp protocol.ConnectionPayload
	_ = json.Unmarshal(got[0].Payload, &cp)
	if cp.ConnectionID != "a" {
		t.Errorf("connectionId = %q", cp.ConnectionID)
	}
	if len(a.all()) != 0 {
		t.Error("status echoed to sender")
	}

	o.SetStatus("a", true)
	if len(b.ofType(protocol.UserOnline)) != 1 {
		t.Error("user-online not relayed")
	}

	// unknown sender: ignored
	o.SetStatus("ghost", false)
}

func TestTyping(t *testing.T) {
	o := newOrch()
	a := mustJoin(t, o, "a", "R", "alice")
	b := mustJoin(t, o, "b", "R", "bob")
	a.reset()
	b.reset()

	file := "f1"
	o.TypingStart("a", protocol.Typing{CursorPosition: 5, CurrentFileID: &file})
	got := b.ofType(protocol.TypingStart)
	if len(got) != 1 {
		t.Fatalf("typing-start count = %d", len(got))
	}
	if p := userOf(t, got[0]); !p.Typing || p.CursorPosition != 5 || p.CurrentFileID == nil || *p.CurrentFileID != "f1" {
		t.Errorf("typing-start record = %+v", p)
	}

	o.TypingPause("a")
	got = b.ofType(protocol.TypingPause)
	if len(got) != 1 || userOf(t, got[0]).Typing {
		t.Errorf("typing-pause = %+v", got)
	}
	if len(a.all()) != 0 {
		t.Error("typing echoed to sender")
	}
	if p, _ := o.Registry.Find("b"); p.Typing || p.CursorPosition != 0 {
		t.Errorf("b mutated: %+v", p)
	}

	o.TypingStart("ghost", protocol.Typing{CursorPosition: 1})
}

func TestForwardFileCreated(t *testing.T) {
	o := newOrch()
	a := mustJoin(t, o, "a", "R", "alice")
	b := mustJoin(t, o, "b", "R", "bob")
	a.reset()
	b.reset()

	payload := json.RawMessage(`{"parentDirId":"root","newFile":{"id":"f1","name":"main.go"}}`)
	o.Forward("a", protocol.Relayed{Kind: protocol.FileCreated, Payload: payload})

	got := b.ofType(protocol.FileCreated)
	if len(got) != 1 {
		t.Fatalf("b file-created count = %d", len(got))
	}
	var want, have any
	_ = json.Unmarshal(payload, &want)
	_ = json.Unmarshal(got[0].Payload, &have)
	if !reflect.DeepEqual(want, have) {
		t.Errorf("payload changed: %s", got[0].Payload)
	}
	if len(a.all()) != 0 {
		t.Error("sender received its own file-created")
	}
}

func TestForwardChatRenamed(t *testing.T) {
	o := newOrch()
	mustJoin(t, o, "a", "R", "alice")
	b := mustJoin(t, o, "b", "R", "bob")
	b.reset()

	o.Forward("a", protocol.Relayed{Kind: protocol.SendMessage, Payload: json.RawMessage(`{"message":{"text":"hi"}}`)})
	if len(b.ofType(protocol.ReceiveMessage)) != 1 {
		t.Errorf("b frames = %+v", b.all())
	}
}

func TestForwardFromUnjoinedDropped(t *testing.T) {
	o := newOrch()
	b := mustJoin(t, o, "b", "R", "bob")
	b.reset()
	o.Forward("ghost", protocol.Relayed{Kind: protocol.FileDeleted, Payload: json.RawMessage(`{"fileId":"f"}`)})
	if len(b.all()) != 0 {
		t.Error("event from unjoined connection delivered")
	}
}

func TestSyncIsUnicast(t *testing.T) {
	o := newOrch()
	a := mustJoin(t, o, "a", "R", "alice")
	b := mustJoin(t, o, "b", "R", "bob")
	c := mustJoin(t, o, "c", "R", "carol")
	a.reset()
	b.reset()
	c.reset()

	o.SyncFileStructure("a", protocol.FileStructureSync{Target: "b", Payload: json.RawMessage(`{"fileTree":{},"openFiles":[],"activeFileId":null}`)})
	o.SyncDrawing("a", protocol.DrawingSync{Target: "b", CanvasData: json.RawMessage(`{"shapes":[]}`)})

	if len(b.ofType(protocol.SyncFileStructure)) != 1 || len(b.ofType(protocol.SyncDrawing)) != 1 {
		t.Errorf("target frames = %+v", b.all())
	}
	if len(c.all()) != 0 || len(a.all()) != 0 {
		t.Errorf("non-targets received sync: a=%v c=%v", a.all(), c.all())
	}
}

func TestRequestDrawingBroadcast(t *testing.T) {
	o := newOrch()
	a := mustJoin(t, o, "a", "R", "alice")
	b := mustJoin(t, o, "b", "R", "bob")
	a.reset()
	b.reset()

	o.RequestDrawing("a")
	got := b.ofType(protocol.RequestDrawing)
	if len(got) != 1 {
		t.Fatalf("request-drawing count = %d", len(got))
	}
	var cp protocol.ConnectionPayload
	_ = json.Unmarshal(got[0].Payload, &cp)
	if cp.ConnectionID != "a" {
		t.Errorf("requester = %q", cp.ConnectionID)
	}
	if len(a.all()) != 0 {
		t.Error("requester received its own request")
	}
}

func TestWhoAmI(t *testing.T) {
	o := newOrch()
	conn := &fakeConn{}
	o.WhoAmI("a", conn)
	mustJoinConn := mustJoin(t, o, "a", "R", "alice")
	o.WhoAmI("a", mustJoinConn)

	var before, after protocol.WhoAmIPayload
	_ = json.Unmarshal(conn.ofType(protocol.WhoAmI)[0].Payload, &before)
	_ = json.Unmarshal(mustJoinConn.ofType(protocol.WhoAmI)[0].Payload, &after)
	if before.User != nil {
		t.Errorf("unjoined whoami = %+v", before.User)
	}
	if after.User == nil || after.User.DisplayName != "alice" {
		t.Errorf("joined whoami = %+v", after.User)
	}
}

func TestSyncToSelfDropped(t *testing.T) {
	o := newOrch()
	a := mustJoin(t, o, "a", "R", "alice")
	a.reset()

	o.SyncDrawing("a", protocol.DrawingSync{Target: "a", CanvasData: json.RawMessage(`{}`)})
	o.SyncFileStructure("a", protocol.FileStructureSync{Target: "a", Payload: json.RawMessage(`{"fileTree":{}}`)})
	if got := a.all(); len(got) != 0 {
		t.Errorf("sender received its own sync: %+v", got)
	}
}

func TestPresenceGaugeFollowsRegistry(t *testing.T) {
	m := metrics.New()
	o := New(app.NewRegistry(), app.DropPolicy{}, m)
	mustJoin(t, o, "a", "R", "alice")
	mustJoin(t, o, "b", "R", "bob")
	_ = o.Join("c", &fakeConn{}, protocol.Join{RoomID: "R", DisplayName: "alice"})
	o.Disconnect("a")
	o.Disconnect("a")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), "codesync_presence_records 1\n") {
		t.Errorf("presence gauge not at registry size 1:\n%s", body)
	}
}
