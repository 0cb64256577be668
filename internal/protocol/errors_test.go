package protocol

import "testing"

func TestCloseReason(t *testing.T) {
	cases := map[int]string{
		CloseNormal:          "normal",
		CloseGoingAway:       "going away",
		CloseAbnormal:        "abnormal closure",
		ClosePolicyViolation: "policy violation",
		4001:                 "application",
		2999:                 "unknown",
	}
	for code, want := range cases {
		if got := CloseReason(code); got != want {
			t.Fatalf("CloseReason(%d)=%q want %q", code, got, want)
		}
	}
}

func TestIsCleanClose(t *testing.T) {
	if !IsCleanClose(CloseNormal) {
		t.Fatalf("expected 1000 to be clean")
	}
	for _, c := range []int{CloseGoingAway, CloseAbnormal, CloseNoStatus, 4000} {
		if IsCleanClose(c) {
			t.Fatalf("expected %d to be unclean", c)
		}
	}
}
