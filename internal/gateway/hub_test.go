package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"warrant-ledgerv1/internal/auth"
	"warrant-ledgerv1/internal/ledger"
	"warrant-ledgerv1/internal/model"
	"warrant-ledgerv1/internal/resolve"

	"github.com/pquerna/otp/totp"
)

// deadFetcher fails every fetch so background resolution never produces
// a follow-up broadcast during a test.
type deadFetcher struct{}

func (deadFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	return nil, errors.New("unreachable")
}

type fakeMirror struct {
	snaps []model.Snapshot
}

func (m *fakeMirror) Mirror(snap model.Snapshot) { m.snaps = append(m.snaps, snap) }

func newTestHub(creds *auth.Credentials, mirror SnapshotMirror) *Hub {
	store := ledger.NewStore(nil, nil)
	pipe := resolve.New(deadFetcher{}, "https://p.test/", "https://f.test/")
	return NewHub(store, pipe, creds, mirror, nil, nil)
}

// attachClient registers a fake client without a real connection; frames
// land in its send channel.
func attachClient(h *Hub) *Client {
	c := &Client{id: "test", send: make(chan []byte, 64), hub: h}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	Ts   time.Time       `json:"ts"`
}

func nextFrame(t *testing.T, c *Client) envelope {
	t.Helper()
	select {
	case frame := <-c.send:
		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("frame is not a valid envelope: %v\n%s", err, frame)
		}
		return env
	default:
		t.Fatal("no frame queued")
		return envelope{}
	}
}

func noFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("unexpected frame: %s", frame)
	default:
	}
}

func TestBuildEnvelope(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	frame := buildEnvelope("data-updated", []byte(`{"a":1}`), now)

	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\n%s", err, frame)
	}
	if env.Type != "data-updated" {
		t.Errorf("type = %q", env.Type)
	}
	if string(env.Data) != `{"a":1}` {
		t.Errorf("data = %s", env.Data)
	}
	if !env.Ts.Equal(now) {
		t.Errorf("ts = %v, want %v", env.Ts, now)
	}
}

func TestNumberString(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`3`, "3"},
		{`"3"`, "3"},
		{` 12 `, "12"},
		{`"abc"`, "abc"},
		{`null`, "null"},
	}
	for _, c := range cases {
		if got := numberString(json.RawMessage(c.raw)); got != c.want {
			t.Errorf("numberString(%s) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestAddWarrant_BroadcastsFullSnapshot(t *testing.T) {
	h := newTestHub(nil, nil)
	sender := attachClient(h)
	other := attachClient(h)

	h.handleAddWarrant(sender, AddWarrantMsg{
		WarrantNumber: "24413",
		Username:      "admin",
		GridsCut:      json.RawMessage(`"3"`),
		GridsRecovery: json.RawMessage(`1`),
	})

	for _, c := range []*Client{sender, other} {
		env := nextFrame(t, c)
		if env.Type != EvDataUpdated {
			t.Fatalf("type = %q, want %q", env.Type, EvDataUpdated)
		}
		var snap map[string]model.Warrant
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			t.Fatal(err)
		}
		w, ok := snap["24413"]
		if !ok || len(w.Entries) != 1 {
			t.Fatalf("snapshot = %s", env.Data)
		}
		if w.Entries[0].GridsCut != 3 || w.Entries[0].GridsRecovery != 1 {
			t.Errorf("entry = %+v", w.Entries[0])
		}
	}
}

func TestAddWarrant_ValidationErrorGoesToSenderOnly(t *testing.T) {
	h := newTestHub(nil, nil)
	sender := attachClient(h)
	other := attachClient(h)

	h.handleAddWarrant(sender, AddWarrantMsg{
		WarrantNumber: "24413",
		Username:      "admin",
		GridsCut:      json.RawMessage(`0`),
		GridsRecovery: json.RawMessage(`0`),
	})

	env := nextFrame(t, sender)
	if env.Type != EvError {
		t.Fatalf("type = %q, want %q", env.Type, EvError)
	}
	var ev ErrorEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Message != "至少需要輸入斬了或回複的格數" {
		t.Errorf("message = %q", ev.Message)
	}
	noFrame(t, other)

	if h.store.WarrantCount() != 0 {
		t.Error("rejected entry must not touch the ledger")
	}
}

func TestDeleteEntry_BroadcastsEvenWhenMissing(t *testing.T) {
	h := newTestHub(nil, nil)
	c := attachClient(h)

	h.handleDeleteEntry(DeleteEntryMsg{WarrantNumber: "24413", Timestamp: 12345})

	env := nextFrame(t, c)
	if env.Type != EvDataUpdated {
		t.Errorf("type = %q, want %q", env.Type, EvDataUpdated)
	}
	if string(env.Data) != "{}" {
		t.Errorf("data = %s, want empty snapshot", env.Data)
	}
}

func TestClearAll_NoSecretConfigured(t *testing.T) {
	h := newTestHub(auth.New(map[string]string{"admin": "x"}, ""), nil)
	c := attachClient(h)

	h.handleAddWarrant(c, AddWarrantMsg{
		WarrantNumber: "24413",
		Username:      "admin",
		GridsCut:      json.RawMessage(`3`),
		GridsRecovery: json.RawMessage(`0`),
	})
	<-c.send // drain the add broadcast

	h.handleClearAll(c, ClearAllMsg{Username: "admin"})

	env := nextFrame(t, c)
	if env.Type != EvDataUpdated || string(env.Data) != "{}" {
		t.Fatalf("first frame = %q %s", env.Type, env.Data)
	}

	env = nextFrame(t, c)
	if env.Type != EvNotification {
		t.Fatalf("second frame type = %q", env.Type)
	}
	var note NotificationEvent
	if err := json.Unmarshal(env.Data, &note); err != nil {
		t.Fatal(err)
	}
	if note.Message != "所有數據已被清除！" || note.Level != "warning" {
		t.Errorf("notification = %+v", note)
	}

	if h.store.WarrantCount() != 0 {
		t.Error("ledger not cleared")
	}
}

func TestClearAll_TOTPGate(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	h := newTestHub(auth.New(nil, secret), nil)
	c := attachClient(h)

	h.handleClearAll(c, ClearAllMsg{Username: "admin", TOTP: "000000"})

	env := nextFrame(t, c)
	if env.Type != EvError {
		t.Fatalf("type = %q, want %q", env.Type, EvError)
	}
	var ev ErrorEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Reason != "forbidden" {
		t.Errorf("reason = %q", ev.Reason)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	h.handleClearAll(c, ClearAllMsg{Username: "admin", TOTP: code})

	env = nextFrame(t, c)
	if env.Type != EvDataUpdated {
		t.Errorf("valid code must clear, got %q", env.Type)
	}
}

func TestBroadcastFeedsMirror(t *testing.T) {
	mirror := &fakeMirror{}
	h := newTestHub(nil, mirror)
	c := attachClient(h)

	h.handleAddWarrant(c, AddWarrantMsg{
		WarrantNumber: "24413",
		Username:      "admin",
		GridsCut:      json.RawMessage(`2`),
		GridsRecovery: json.RawMessage(`0`),
	})

	if len(mirror.snaps) != 1 {
		t.Fatalf("mirror received %d snapshots, want 1", len(mirror.snaps))
	}
	if _, ok := mirror.snaps[0]["24413"]; !ok {
		t.Errorf("mirrored snapshot = %v", mirror.snaps[0])
	}
}

func TestSendAfterDisconnectDoesNotPanic(t *testing.T) {
	h := newTestHub(nil, nil)
	c := attachClient(h)

	// A client can drop before its detached initial-state send runs;
	// queued sends after deregistration must be silently discarded.
	h.RemoveClient(c)
	c.sendInitialState()
	c.sendEvent(EvError, ErrorEvent{Reason: "late", Message: "late"})
	h.Broadcaster.BroadcastEvent(EvNotification, NotificationEvent{Level: "info", Message: "x"})

	if h.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", h.ClientCount())
	}
}

func TestRemoveClient_Twice(t *testing.T) {
	h := newTestHub(nil, nil)
	c := attachClient(h)
	h.RemoveClient(c)
	h.RemoveClient(c) // double close of the send channel would panic
}

func TestFanOut_DropsWhenClientBufferFull(t *testing.T) {
	h := newTestHub(nil, nil)
	slow := &Client{id: "slow", send: make(chan []byte), hub: h}
	h.mu.Lock()
	h.clients[slow] = true
	h.mu.Unlock()
	fast := attachClient(h)

	h.Broadcaster.BroadcastEvent(EvNotification, NotificationEvent{Level: "info", Message: "hi"})

	nextFrame(t, fast)
	noFrame(t, slow)
}
