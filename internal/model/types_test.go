package model

import (
	"testing"

	"github.com/google/uuid"
)

func TestCanonicalPair_orderIndependent(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	lo1, hi1 := CanonicalPair(a, b)
	lo2, hi2 := CanonicalPair(b, a)

	if lo1 != lo2 || hi1 != hi2 {
		t.Error("canonical pair should not depend on argument order")
	}
	if lo1 == hi1 {
		t.Error("distinct refs should stay distinct")
	}
}

func TestCanonicalPair_equalRefs(t *testing.T) {
	a := uuid.New()
	lo, hi := CanonicalPair(a, a)
	if lo != a || hi != a {
		t.Error("equal refs map to themselves")
	}
}

func TestFriendEdge_Other(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	lo, hi := CanonicalPair(a, b)
	edge := FriendEdge{UserLo: lo, UserHi: hi}

	if got := edge.Other(lo); got != hi {
		t.Errorf("Other(lo) = %s, want %s", got, hi)
	}
	if got := edge.Other(hi); got != lo {
		t.Errorf("Other(hi) = %s, want %s", got, lo)
	}
}

func TestPurpose_Valid(t *testing.T) {
	if !PurposeLogin.Valid() || !PurposeRegister.Valid() {
		t.Error("known purposes should be valid")
	}
	if Purpose("password_reset").Valid() || Purpose("").Valid() {
		t.Error("unknown purposes should be invalid")
	}
}
