package userpool

import (
	"errors"
	"testing"
)

func TestSignInStateStoreSingleSlot(t *testing.T) {
	store := newSignInStateStore()

	if err := store.begin("alice", SignInDetails{LoginID: "alice", AuthFlowType: FlowUserSRP}); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := store.begin("bob", SignInDetails{LoginID: "bob"}); !errors.Is(err, ErrSignInInProgress) {
		t.Fatalf("expected ErrSignInInProgress, got %v", err)
	}

	// Restarting the same username replaces the attempt instead of
	// rejecting it.
	if err := store.begin("alice", SignInDetails{LoginID: "alice", AuthFlowType: FlowUserPassword}); err != nil {
		t.Fatalf("same-username restart failed: %v", err)
	}
	active := store.snapshot()
	if active == nil || active.Details.AuthFlowType != FlowUserPassword {
		t.Fatalf("expected replaced attempt, got %+v", active)
	}
}

func TestSignInStateStoreAdvance(t *testing.T) {
	store := newSignInStateStore()
	if err := store.begin("alice", SignInDetails{LoginID: "alice"}); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	store.advance("alice", "session-1", "SMS_MFA")
	active := store.snapshot()
	if active.Session != "session-1" || active.ChallengeName != "SMS_MFA" {
		t.Fatalf("unexpected state after advance: %+v", active)
	}

	// Mismatched usernames never touch the slot.
	store.advance("bob", "session-evil", "CUSTOM_CHALLENGE")
	if active := store.snapshot(); active.Session != "session-1" {
		t.Fatalf("foreign advance mutated the slot: %+v", active)
	}
}

func TestSignInStateStoreSnapshotIsACopy(t *testing.T) {
	store := newSignInStateStore()
	if err := store.begin("alice", SignInDetails{LoginID: "alice"}); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	snap := store.snapshot()
	snap.Session = "tampered"
	if active := store.snapshot(); active.Session != "" {
		t.Fatalf("snapshot mutation leaked into the store: %+v", active)
	}
}

func TestSignInStateStoreClear(t *testing.T) {
	store := newSignInStateStore()
	if err := store.begin("alice", SignInDetails{LoginID: "alice"}); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	store.clear()
	if active := store.snapshot(); active != nil {
		t.Fatalf("expected empty slot, got %+v", active)
	}
	if err := store.begin("carol", SignInDetails{LoginID: "carol"}); err != nil {
		t.Fatalf("begin after clear failed: %v", err)
	}
}
