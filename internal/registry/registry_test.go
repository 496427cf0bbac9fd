package registry

import (
	"testing"

	"github.com/google/uuid"
)

type fakeConn struct {
	name        string
	pushes      []pushRecord
	forcedOut   bool
}

type pushRecord struct {
	kind string
	data any
}

func (f *fakeConn) Push(kind string, data any) { f.pushes = append(f.pushes, pushRecord{kind, data}) }
func (f *fakeConn) ForceLogout()                { f.forcedOut = true }

func TestForwardExcludesOriginator(t *testing.T) {
	r := New()
	user := uuid.New()
	a := &fakeConn{name: "a"}
	b := &fakeConn{name: "b"}
	r.Login(user, a)
	r.Login(user, b)

	r.Forward(user, "message", "hi", a)

	if len(a.pushes) != 0 {
		t.Errorf("originating connection received a push: %+v", a.pushes)
	}
	if len(b.pushes) != 1 || b.pushes[0].kind != "message" {
		t.Errorf("other session did not receive the push: %+v", b.pushes)
	}
}

func TestLogoutRemovesEmptySet(t *testing.T) {
	r := New()
	user := uuid.New()
	a := &fakeConn{name: "a"}
	r.Login(user, a)
	if !r.Online(user) {
		t.Fatal("user not reported online after Login")
	}
	r.Logout(user, a)
	if r.Online(user) {
		t.Fatal("user still reported online after its only session logged out")
	}
}

func TestForceLogoutSparesExceptFor(t *testing.T) {
	r := New()
	user := uuid.New()
	a := &fakeConn{name: "a"}
	b := &fakeConn{name: "b"}
	r.Login(user, a)
	r.Login(user, b)

	r.ForceLogout(user, a)

	if a.forcedOut {
		t.Error("exceptFor connection was force-logged-out")
	}
	if !b.forcedOut {
		t.Error("other session was not force-logged-out")
	}
}

func TestForwardManyReachesEveryUser(t *testing.T) {
	r := New()
	alice, bob := uuid.New(), uuid.New()
	aConn := &fakeConn{name: "alice"}
	bConn := &fakeConn{name: "bob"}
	r.Login(alice, aConn)
	r.Login(bob, bConn)

	r.ForwardMany([]uuid.UUID{alice, bob}, "roleChanged", nil, nil)

	if len(aConn.pushes) != 1 || len(bConn.pushes) != 1 {
		t.Errorf("expected one push each, got alice=%d bob=%d", len(aConn.pushes), len(bConn.pushes))
	}
}
