package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/store"
)

func TestCreateGroupHasExactlyOneOwner(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice := uuid.New()

	g, err := s.CreateGroup(ctx, alice, "Alice", "G")
	if err != nil {
		t.Fatalf("CreateGroup() error: %v", err)
	}
	if len(g.Members) != 1 || g.Members[0].Role != store.RoleOwner {
		t.Fatalf("CreateGroup() members = %+v, want exactly one owner", g.Members)
	}
}

func TestSetRoleOwnerTransferIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice, bob := uuid.New(), uuid.New()

	g, err := s.CreateGroup(ctx, alice, "Alice", "G")
	if err != nil {
		t.Fatalf("CreateGroup() error: %v", err)
	}
	if err := s.JoinGroup(ctx, g.ID, bob, "Bob"); err != nil {
		t.Fatalf("JoinGroup() error: %v", err)
	}

	transferred, err := s.SetRole(ctx, g.ID, alice, bob, store.RoleOwner)
	if err != nil {
		t.Fatalf("SetRole() error: %v", err)
	}
	if !transferred {
		t.Fatal("SetRole() to owner reported no transfer")
	}

	aliceRole, err := s.GetRole(ctx, g.ID, alice)
	if err != nil {
		t.Fatalf("GetRole(alice) error: %v", err)
	}
	bobRole, err := s.GetRole(ctx, g.ID, bob)
	if err != nil {
		t.Fatalf("GetRole(bob) error: %v", err)
	}
	if aliceRole != store.RoleModerator {
		t.Errorf("previous owner role = %v, want moderator", aliceRole)
	}
	if bobRole != store.RoleOwner {
		t.Errorf("new owner role = %v, want owner", bobRole)
	}

	owners := 0
	members, _ := s.GetUsers(ctx, g.ID)
	for _, m := range members {
		if m.Role == store.RoleOwner {
			owners++
		}
	}
	if owners != 1 {
		t.Errorf("group has %d owners after transfer, want exactly 1", owners)
	}
}

func TestSequentialMessageIDsAreMonotonicAndNeverReused(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice := uuid.New()
	g, _ := s.CreateGroup(ctx, alice, "Alice", "G")
	m, err := s.CreateModule(ctx, g.ID, "main", store.ModuleChat)
	if err != nil {
		t.Fatalf("CreateModule() error: %v", err)
	}

	msg1, err := s.SendMessage(ctx, m.ID, alice, "hello")
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg1.ID != 1 {
		t.Fatalf("first message id = %d, want 1", msg1.ID)
	}

	if _, err := s.EditMessage(ctx, m.ID, msg1.ID, ""); err != nil {
		t.Fatalf("EditMessage() (delete) error: %v", err)
	}

	msg2, err := s.SendMessage(ctx, m.ID, alice, "world")
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg2.ID != 2 {
		t.Fatalf("second message id = %d, want 2 (ids must never be reused)", msg2.ID)
	}
}

func TestLeaveGroupCascadesOnLastMember(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice := uuid.New()
	g, _ := s.CreateGroup(ctx, alice, "Alice", "G")
	m, _ := s.CreateModule(ctx, g.ID, "main", store.ModuleChat)
	if err := s.AddGroupInviteCode(ctx, g.ID, "LEAVECODE1", 0); err != nil {
		t.Fatalf("AddGroupInviteCode() error: %v", err)
	}

	deleted, err := s.LeaveGroup(ctx, g.ID, alice)
	if err != nil {
		t.Fatalf("LeaveGroup() error: %v", err)
	}
	if !deleted {
		t.Fatal("LeaveGroup() by the sole member did not report group deletion")
	}

	if _, err := s.GetModuleInfo(ctx, m.ID); err != store.ErrNotFound {
		t.Errorf("module survived cascading delete: err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetGroupName(ctx, g.ID); err != store.ErrNotFound {
		t.Errorf("group survived its own deletion: err = %v, want ErrNotFound", err)
	}
	if _, err := s.CheckInviteCode(ctx, "LEAVECODE1"); err != store.ErrNotFound {
		t.Errorf("invite link for the deleted group survived: err = %v, want ErrNotFound", err)
	}
}

func TestGetMessagesReturnsAtMostFifty(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice := uuid.New()
	g, _ := s.CreateGroup(ctx, alice, "Alice", "G")
	m, _ := s.CreateModule(ctx, g.ID, "main", store.ModuleChat)

	for range 60 {
		if _, err := s.SendMessage(ctx, m.ID, alice, "x"); err != nil {
			t.Fatalf("SendMessage() error: %v", err)
		}
	}

	msgs, err := s.GetMessages(ctx, m.ID, 0, 1<<53)
	if err != nil {
		t.Fatalf("GetMessages() error: %v", err)
	}
	if len(msgs) > 50 {
		t.Errorf("GetMessages() returned %d messages, want at most 50", len(msgs))
	}
}

func TestSendInviteIsIdempotentWhilePending(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice, bob := uuid.New(), uuid.New()
	g, _ := s.CreateGroup(ctx, alice, "Alice", "G")

	pending, err := s.SendInvite(ctx, g.ID, bob, "G", "Alice")
	if err != nil {
		t.Fatalf("SendInvite() error: %v", err)
	}
	if pending {
		t.Fatal("first SendInvite() reported already pending")
	}

	pending, err = s.SendInvite(ctx, g.ID, bob, "G", "Alice")
	if err != nil {
		t.Fatalf("second SendInvite() error: %v", err)
	}
	if !pending {
		t.Fatal("repeated SendInvite() did not report already pending")
	}

	invites, err := s.GetInvites(ctx, bob)
	if err != nil {
		t.Fatalf("GetInvites() error: %v", err)
	}
	if len(invites) != 1 {
		t.Fatalf("GetInvites() returned %d invites, want exactly 1 (no duplicate)", len(invites))
	}
}
