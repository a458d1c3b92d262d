package util

import "testing"

func TestHasPrefix(t *testing.T) {
	cases := []struct {
		parts, prefix []string
		want          bool
	}{
		{[]string{"a", "b"}, nil, true},
		{[]string{"a", "b"}, []string{"a"}, true},
		{[]string{"a", "b"}, []string{"a", "b"}, true},
		{[]string{"a", "b"}, []string{"a", "b", "c"}, false},
		{[]string{"ab"}, []string{"a"}, false},
		{[]string{"a", "b"}, []string{"b"}, false},
	}
	for _, tc := range cases {
		if got := HasPrefix(tc.parts, tc.prefix); got != tc.want {
			t.Fatalf("HasPrefix(%q, %q)=%v want %v", tc.parts, tc.prefix, got, tc.want)
		}
	}
}

func TestFingerprintStableAndShort(t *testing.T) {
	a, b := Fingerprint("posts"), Fingerprint("posts")
	if a != b {
		t.Fatalf("fingerprint not stable: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("fingerprint len=%d want 16", len(a))
	}
	if a == Fingerprint("todos") {
		t.Fatalf("distinct inputs share a fingerprint")
	}
}
