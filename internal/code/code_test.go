package code

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingSender struct {
	sent map[string]string
	n    int
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[string]string)}
}

func (s *recordingSender) SendCode(email string, kind Kind, code string) error {
	s.sent[email] = code
	s.n++
	return nil
}

func TestSendConfirmationIsIdempotentWhileLive(t *testing.T) {
	sender := newRecordingSender()
	m := New(time.Hour, 3, sender, zerolog.Nop())

	if err := m.SendConfirmation("a@x.com", KindNewAccount, nil); err != nil {
		t.Fatalf("SendConfirmation() error: %v", err)
	}
	first := sender.sent["a@x.com"]

	if err := m.SendConfirmation("a@x.com", KindNewAccount, nil); err != nil {
		t.Fatalf("SendConfirmation() error: %v", err)
	}
	if sender.n != 1 {
		t.Errorf("SendConfirmation() sent %d times while live, want 1 (I8)", sender.n)
	}
	if sender.sent["a@x.com"] != first {
		t.Error("SendConfirmation() issued a different code while the first was still live")
	}
}

func TestCheckCodeIsSingleUse(t *testing.T) {
	sender := newRecordingSender()
	m := New(time.Hour, 3, sender, zerolog.Nop())
	_ = m.SendConfirmation("a@x.com", KindNewAccount, map[string]any{"x": 1})
	good := sender.sent["a@x.com"]

	if _, ok := m.CheckCode("a@x.com", KindNewAccount, good); !ok {
		t.Fatal("CheckCode() rejected the correct code")
	}
	if _, ok := m.CheckCode("a@x.com", KindNewAccount, good); ok {
		t.Fatal("CheckCode() accepted a code a second time (I6 violated)")
	}
}

func TestCheckCodeRejectsMalformedCandidateWithoutConsumingAttempt(t *testing.T) {
	sender := newRecordingSender()
	m := New(time.Hour, 3, sender, zerolog.Nop())
	_ = m.SendConfirmation("a@x.com", KindNewAccount, nil)
	good := sender.sent["a@x.com"]

	if _, ok := m.CheckCode("a@x.com", KindNewAccount, "12"); ok {
		t.Fatal("CheckCode() accepted a malformed candidate")
	}
	if _, ok := m.CheckCode("a@x.com", KindNewAccount, good); !ok {
		t.Fatal("a malformed attempt consumed a real attempt or the entry")
	}
}

func TestCheckCodeDiscardsEntryAfterMaxFails(t *testing.T) {
	sender := newRecordingSender()
	m := New(time.Hour, 3, sender, zerolog.Nop())
	_ = m.SendConfirmation("a@x.com", KindNewAccount, nil)
	good := sender.sent["a@x.com"]

	wrong := "000000"
	if wrong == good {
		wrong = "111111"
	}
	for range 3 {
		if _, ok := m.CheckCode("a@x.com", KindNewAccount, wrong); ok {
			t.Fatal("CheckCode() accepted a wrong code")
		}
	}

	if _, ok := m.CheckCode("a@x.com", KindNewAccount, good); ok {
		t.Fatal("CheckCode() accepted the correct code after 3 failures (B5 violated)")
	}
}

func TestCheckCodeRejectsWrongKind(t *testing.T) {
	sender := newRecordingSender()
	m := New(time.Hour, 3, sender, zerolog.Nop())
	_ = m.SendConfirmation("a@x.com", KindTwoFactor, nil)
	good := sender.sent["a@x.com"]

	if _, ok := m.CheckCode("a@x.com", KindNewAccount, good); ok {
		t.Fatal("CheckCode() accepted a code for the wrong kind")
	}
}

func TestCheckCodeRejectsAfterExpiry(t *testing.T) {
	sender := newRecordingSender()
	m := New(time.Millisecond, 3, sender, zerolog.Nop())
	_ = m.SendConfirmation("a@x.com", KindNewAccount, nil)
	good := sender.sent["a@x.com"]

	time.Sleep(5 * time.Millisecond)

	if _, ok := m.CheckCode("a@x.com", KindNewAccount, good); ok {
		t.Fatal("CheckCode() accepted an expired code (B4 violated)")
	}
}

func TestStartCreationRejectsDuplicatePending(t *testing.T) {
	sender := newRecordingSender()
	m := New(time.Hour, 3, sender, zerolog.Nop())

	if err := m.StartCreation("Alice", "a@x.com", "hash"); err != nil {
		t.Fatalf("StartCreation() error: %v", err)
	}
	if err := m.StartCreation("Alice", "a@x.com", "hash"); err != ErrAlreadyPending {
		t.Fatalf("StartCreation() err = %v, want ErrAlreadyPending", err)
	}
}

func TestFinishCreationPopsPendingAccount(t *testing.T) {
	sender := newRecordingSender()
	m := New(time.Hour, 3, sender, zerolog.Nop())
	_ = m.StartCreation("Alice", "a@x.com", "hash")

	pa, ok := m.FinishCreation("a@x.com")
	if !ok {
		t.Fatal("FinishCreation() did not find the pending account")
	}
	if pa.Name != "Alice" || pa.Email != "a@x.com" {
		t.Errorf("FinishCreation() = %+v, want Alice/a@x.com", pa)
	}

	if _, ok := m.FinishCreation("a@x.com"); ok {
		t.Fatal("FinishCreation() returned the same pending account twice")
	}
}
