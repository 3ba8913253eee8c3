package state

import "testing"

func TestNextStateForward(t *testing.T) {
	s, err := NextState(StateWaiting, EvtJoin)
	if err != nil || s != StateActive {
		t.Fatalf("waiting --join--> got (%s, %v)", s, err)
	}
	s, err = NextState(StateWaiting, EvtStart)
	if err != nil || s != StateActive {
		t.Fatalf("waiting --start--> got (%s, %v)", s, err)
	}
	s, err = NextState(StateActive, EvtSettle)
	if err != nil || s != StateSettled {
		t.Fatalf("active --settle--> got (%s, %v)", s, err)
	}
}

func TestNextStateRejectsSkipAndReverse(t *testing.T) {
	// 不可跳跃
	if _, err := NextState(StateWaiting, EvtSettle); err == nil {
		t.Fatalf("waiting --settle--> should fail")
	}
	// active 不可重复加入
	if _, err := NextState(StateActive, EvtJoin); err == nil {
		t.Fatalf("active --join--> should fail")
	}
	if _, err := NextState(StateActive, EvtStart); err == nil {
		t.Fatalf("active --start--> should fail")
	}
	// 终态不可再变更
	for _, evt := range []string{EvtJoin, EvtStart, EvtSettle} {
		if _, err := NextState(StateSettled, evt); err == nil {
			t.Fatalf("settled --%s--> should fail", evt)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(StateWaiting) || IsTerminal(StateActive) {
		t.Fatalf("waiting/active are not terminal")
	}
	if !IsTerminal(StateSettled) {
		t.Fatalf("settled is terminal")
	}
}
