package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/protoerr"
	"github.com/comcore-chat/comcore-server/internal/store"
	"github.com/comcore-chat/comcore-server/internal/store/memory"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *memory.Store) {
	t.Helper()
	s := memory.New()
	return New(s, 50, t.TempDir(), 10*1024*1024), s
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func createAccount(t *testing.T, s *memory.Store, name, email string) uuid.UUID {
	t.Helper()
	acc, err := s.CreateAccount(context.Background(), name, email, "hash")
	if err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}
	return acc.ID
}

func TestSendMessageThenGetMessagesSeedScenario(t *testing.T) {
	ctx := context.Background()
	d, s := newTestDispatcher(t)
	alice := createAccount(t, s, "Alice", "alice@x")

	groupResp, _, err := d.Handle(ctx, alice, "createGroup", mustJSON(t, map[string]any{"name": "G"}))
	if err != nil {
		t.Fatalf("createGroup error: %v", err)
	}
	groupID := groupResp.(map[string]any)["id"].(uuid.UUID)

	moduleResp, _, err := d.Handle(ctx, alice, "createModule", mustJSON(t, map[string]any{"group": groupID.String(), "name": "main", "type": "chat"}))
	if err != nil {
		t.Fatalf("createModule error: %v", err)
	}
	moduleID := moduleResp.(map[string]any)["id"].(uuid.UUID)

	sendResp, pushes, err := d.Handle(ctx, alice, "sendMessage", mustJSON(t, map[string]any{"group": groupID.String(), "chat": moduleID.String(), "contents": "hello"}))
	if err != nil {
		t.Fatalf("sendMessage error: %v", err)
	}
	msg := sendResp.(map[string]any)
	if msg["id"] != int64(1) {
		t.Errorf("sendMessage id = %v, want 1", msg["id"])
	}
	if len(pushes) != 1 || pushes[0].GroupID != groupID {
		t.Errorf("sendMessage pushes = %+v, want one group push", pushes)
	}

	getResp, _, err := d.Handle(ctx, alice, "getMessages", mustJSON(t, map[string]any{"group": groupID.String(), "chat": moduleID.String(), "after": 0, "before": 0}))
	if err != nil {
		t.Fatalf("getMessages error: %v", err)
	}
	messages := getResp.(map[string]any)["messages"]
	list, ok := messages.([]*store.Message)
	if !ok || len(list) != 1 {
		t.Fatalf("getMessages() = %+v, want exactly one message", messages)
	}
	if list[0].Contents != "hello" {
		t.Errorf("getMessages()[0].Contents = %q, want %q", list[0].Contents, "hello")
	}
}

func TestSetRoleRejectsLowerActor(t *testing.T) {
	ctx := context.Background()
	d, s := newTestDispatcher(t)
	alice := createAccount(t, s, "Alice", "alice@x")
	bob := createAccount(t, s, "Bob", "bob@x")

	groupResp, _, _ := d.Handle(ctx, alice, "createGroup", mustJSON(t, map[string]any{"name": "G"}))
	groupID := groupResp.(map[string]any)["id"].(uuid.UUID)
	if err := s.JoinGroup(ctx, groupID, bob, "Bob"); err != nil {
		t.Fatalf("JoinGroup() error: %v", err)
	}

	_, _, err := d.Handle(ctx, bob, "setRole", mustJSON(t, map[string]any{"group": groupID.String(), "target": alice.String(), "role": "moderator"}))
	if err == nil {
		t.Fatal("setRole by a lower-role actor succeeded, want error")
	}
	var reqErr *protoerr.RequestError
	if !asRequestError(err, &reqErr) {
		t.Errorf("setRole error = %v, want a RequestError", err)
	}
}

func TestSetRoleOwnerTransferPushesBothUsers(t *testing.T) {
	ctx := context.Background()
	d, s := newTestDispatcher(t)
	alice := createAccount(t, s, "Alice", "alice@x")
	bob := createAccount(t, s, "Bob", "bob@x")

	groupResp, _, _ := d.Handle(ctx, alice, "createGroup", mustJSON(t, map[string]any{"name": "G"}))
	groupID := groupResp.(map[string]any)["id"].(uuid.UUID)
	if err := s.JoinGroup(ctx, groupID, bob, "Bob"); err != nil {
		t.Fatalf("JoinGroup() error: %v", err)
	}

	_, pushes, err := d.Handle(ctx, alice, "setRole", mustJSON(t, map[string]any{"group": groupID.String(), "target": bob.String(), "role": "owner"}))
	if err != nil {
		t.Fatalf("setRole error: %v", err)
	}
	if len(pushes) != 2 {
		t.Fatalf("owner transfer produced %d pushes, want 2 (target + demoted actor)", len(pushes))
	}
}

func TestSetMutedThenSendMessageRejected(t *testing.T) {
	ctx := context.Background()
	d, s := newTestDispatcher(t)
	alice := createAccount(t, s, "Alice", "alice@x")
	bob := createAccount(t, s, "Bob", "bob@x")

	groupResp, _, _ := d.Handle(ctx, alice, "createGroup", mustJSON(t, map[string]any{"name": "G"}))
	groupID := groupResp.(map[string]any)["id"].(uuid.UUID)
	if err := s.JoinGroup(ctx, groupID, bob, "Bob"); err != nil {
		t.Fatalf("JoinGroup() error: %v", err)
	}
	moduleResp, _, _ := d.Handle(ctx, alice, "createModule", mustJSON(t, map[string]any{"group": groupID.String(), "name": "main", "type": "chat"}))
	moduleID := moduleResp.(map[string]any)["id"].(uuid.UUID)

	if _, _, err := d.Handle(ctx, alice, "setMuted", mustJSON(t, map[string]any{"group": groupID.String(), "target": bob.String(), "muted": true})); err != nil {
		t.Fatalf("setMuted error: %v", err)
	}

	_, _, err := d.Handle(ctx, bob, "sendMessage", mustJSON(t, map[string]any{"group": groupID.String(), "chat": moduleID.String(), "contents": "x"}))
	if err == nil {
		t.Fatal("sendMessage by a muted user succeeded, want error")
	}
	if got := protoerr.ClientMessage(err); got != "user is muted" {
		t.Errorf("sendMessage error message = %q, want %q", got, "user is muted")
	}
}

func TestAddEventApprovalBySimpleRole(t *testing.T) {
	ctx := context.Background()
	d, s := newTestDispatcher(t)
	alice := createAccount(t, s, "Alice", "alice@x")
	bob := createAccount(t, s, "Bob", "bob@x")

	groupResp, _, _ := d.Handle(ctx, alice, "createGroup", mustJSON(t, map[string]any{"name": "G"}))
	groupID := groupResp.(map[string]any)["id"].(uuid.UUID)
	if err := s.SetRequireApproval(ctx, groupID, true); err != nil {
		t.Fatalf("SetRequireApproval() error: %v", err)
	}
	if err := s.JoinGroup(ctx, groupID, bob, "Bob"); err != nil {
		t.Fatalf("JoinGroup() error: %v", err)
	}
	calResp, _, _ := d.Handle(ctx, alice, "createModule", mustJSON(t, map[string]any{"group": groupID.String(), "name": "cal", "type": "cal"}))
	calID := calResp.(map[string]any)["id"].(uuid.UUID)

	bobEvent, _, err := d.Handle(ctx, bob, "addEvent", mustJSON(t, map[string]any{"group": groupID.String(), "calendar": calID.String(), "description": "x", "start": 1, "end": 2}))
	if err != nil {
		t.Fatalf("addEvent (user) error: %v", err)
	}
	if bobEvent.(*store.Event).Approved {
		t.Error("event created by role=user under requireApproval should start unapproved")
	}

	aliceEvent, _, err := d.Handle(ctx, alice, "addEvent", mustJSON(t, map[string]any{"group": groupID.String(), "calendar": calID.String(), "description": "y", "start": 1, "end": 2}))
	if err != nil {
		t.Fatalf("addEvent (owner) error: %v", err)
	}
	if !aliceEvent.(*store.Event).Approved {
		t.Error("event created by role=owner should start approved")
	}
}

func asRequestError(err error, target **protoerr.RequestError) bool {
	if re, ok := err.(*protoerr.RequestError); ok {
		*target = re
		return true
	}
	return false
}

func TestUnknownKindIsRequestError(t *testing.T) {
	ctx := context.Background()
	d, s := newTestDispatcher(t)
	alice := createAccount(t, s, "Alice", "alice@x")

	_, _, err := d.Handle(ctx, alice, "doesNotExist", nil)
	if err == nil {
		t.Fatal("unknown kind did not error")
	}
	fmt.Sprintf("%v", err) // smoke: ensure Error() does not panic
}
