// Package ustr is the kernel's path/string type: an immutable byte slice
// plus path-component helpers, adapted from Biscuit's ustr.Ustr
// (biscuit/src/ustr/ustr.go). Canonicalize is original to this port since
// the teacher's bpath package (which Biscuit's Cwd_t.Canonicalpath called
// out to) carried no implementation in the retrieved sources — it builds
// on Ustr the same way Extend/IsAbsolute do.
package ustr

import "strings"

// Ustr is a path or string as the kernel sees it: a plain byte slice, no
// NUL terminator assumed.
type Ustr []byte

// MkUstr returns an empty Ustr.
func MkUstr() Ustr { return Ustr{} }

// MkUstrRoot returns the root path "/".
func MkUstrRoot() Ustr { return Ustr("/") }

// MkUstrDot returns the current-directory path ".".
func MkUstrDot() Ustr { return Ustr(".") }

// DotDot is the reusable parent-directory component.
var DotDot = Ustr("..")

// MkUstrSlice truncates buf at its first NUL byte, the shape a fixed-size
// path argument copied in from user memory arrives in.
func MkUstrSlice(buf []byte) Ustr {
	for i, b := range buf {
		if b == 0 {
			return Ustr(buf[:i])
		}
	}
	return Ustr(buf)
}

// Isdot reports whether us is exactly ".".
func (us Ustr) Isdot() bool { return len(us) == 1 && us[0] == '.' }

// Isdotdot reports whether us is exactly "..".
func (us Ustr) Isdotdot() bool { return len(us) == 2 && us[0] == '.' && us[1] == '.' }

// IsAbsolute reports whether us begins with '/'.
func (us Ustr) IsAbsolute() bool { return len(us) > 0 && us[0] == '/' }

// Eq compares two paths byte for byte.
func (us Ustr) Eq(other Ustr) bool {
	return string(us) == string(other)
}

// String converts us to a Go string.
func (us Ustr) String() string { return string(us) }

// Extend appends a '/' and p to us, returning a new path.
func (us Ustr) Extend(p Ustr) Ustr {
	out := make(Ustr, 0, len(us)+1+len(p))
	out = append(out, us...)
	out = append(out, '/')
	return append(out, p...)
}

// ExtendStr is Extend taking a Go string component.
func (us Ustr) ExtendStr(p string) Ustr {
	return us.Extend(Ustr(p))
}

// IndexByte returns the first index of b in us, or -1.
func (us Ustr) IndexByte(b byte) int {
	for i, v := range us {
		if v == b {
			return i
		}
	}
	return -1
}

// Components splits an absolute or relative path into its non-empty
// slash-separated parts; "a//b/./c" yields ["a", "b", ".", "c"].
func (us Ustr) Components() []string {
	parts := strings.Split(string(us), "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Canonicalize resolves "." and ".." components and collapses repeated
// slashes, returning an absolute path. It mirrors the normalization every
// VFS lookup needs before walking the mount table (spec §4.6).
func Canonicalize(p Ustr) Ustr {
	var stack []string
	for _, c := range p.Components() {
		switch c {
		case ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, c)
		}
	}
	return Ustr("/" + strings.Join(stack, "/"))
}

// Join resolves p relative to cwd (p itself if already absolute), then
// canonicalizes, matching Biscuit's Cwd_t.Canonicalpath.
func Join(cwd, p Ustr) Ustr {
	var full Ustr
	if p.IsAbsolute() {
		full = p
	} else {
		full = cwd.Extend(p)
	}
	return Canonicalize(full)
}
