package ustr

import "testing"

func TestCanonicalizeResolvesDotAndDotDot(t *testing.T) {
	got := Canonicalize(Ustr("/a/./b/../c"))
	if got.String() != "/a/c" {
		t.Fatalf("got %q", got)
	}
}

func TestCanonicalizeCollapsesSlashes(t *testing.T) {
	got := Canonicalize(Ustr("/a//b///c"))
	if got.String() != "/a/b/c" {
		t.Fatalf("got %q", got)
	}
}

func TestJoinRelativeAgainstCwd(t *testing.T) {
	got := Join(Ustr("/home/user"), Ustr("docs"))
	if got.String() != "/home/user/docs" {
		t.Fatalf("got %q", got)
	}
}

func TestJoinAbsoluteIgnoresCwd(t *testing.T) {
	got := Join(Ustr("/home/user"), Ustr("/etc/passwd"))
	if got.String() != "/etc/passwd" {
		t.Fatalf("got %q", got)
	}
}

func TestMkUstrSliceTruncatesAtNUL(t *testing.T) {
	buf := make([]byte, 8)
	copy(buf, "abc")
	got := MkUstrSlice(buf)
	if got.String() != "abc" {
		t.Fatalf("got %q", got)
	}
}
