package core

import "testing"

func TestNormalizeIdentity(t *testing.T) {
	cases := map[string]string{
		"Alice":     "alice",
		"  Bob  ":   "bob",
		"CHARLIE":   "charlie",
		"":          "",
		"  ":        "",
		"MixedCase": "mixedcase",
	}
	for in, want := range cases {
		if got := NormalizeIdentity(in); got != want {
			t.Errorf("NormalizeIdentity(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDMIDSymmetric(t *testing.T) {
	if got := DMID("Alice", "Bob"); got != "alice:bob" {
		t.Fatalf("DMID = %q, want alice:bob", got)
	}
	if DMID("Alice", "Bob") != DMID("bob", "ALICE") {
		t.Fatalf("DMID is not symmetric")
	}
	if DMID("zed", "amy") != "amy:zed" {
		t.Fatalf("DMID does not order participants")
	}
}
