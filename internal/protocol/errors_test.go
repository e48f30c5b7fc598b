package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrBadRequest,
		ErrUnknownAction,
		ErrBusy,
		ErrUnknownPoint,
		ErrUnknownValue,
		ErrSaveFailed,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestIsKnownAction(t *testing.T) {
	for _, a := range []string{ActionNewGame, ActionBackToMenu, ActionTeleport, ActionInteract, ActionValue, ActionSave, ActionLoad, ActionStatus} {
		if !IsKnownAction(a) {
			t.Fatalf("expected known action: %q", a)
		}
	}
	if IsKnownAction("JUMP") || IsKnownAction("") {
		t.Fatalf("expected unknown actions rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"REQUEST","protocol_version":"1.0","action":"SAVE"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != TypeRequest || m.ProtocolVersion != Version {
		t.Fatalf("base=%+v", m)
	}
	if _, err := DecodeBase([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}
