// Package errno defines the kernel-internal error type and the
// Linux-compatible error codes the syscall layer hands back to user space.
package errno

import "golang.org/x/sys/unix"

// Err_t is a kernel error code: zero is success, negative is a Linux errno.
// Handlers return the correct negative integer directly; the dispatch layer
// never translates it.
type Err_t int

// String renders the error for panics and log lines: "ok" for zero, the
// conventional name for a known code, else "errno " plus the negative
// integer.
func (e Err_t) String() string {
	if e == 0 {
		return "ok"
	}
	if name, ok := names[e]; ok {
		return name
	}
	return "errno " + itoa(int(e))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Codes sourced from golang.org/x/sys/unix so the numeric space matches the
// Linux x86_64 ABI exactly, per spec §7.
var (
	EPERM    = Err_t(-int(unix.EPERM))
	ENOENT   = Err_t(-int(unix.ENOENT))
	EIO      = Err_t(-int(unix.EIO))
	EBADF    = Err_t(-int(unix.EBADF))
	ENOMEM   = Err_t(-int(unix.ENOMEM))
	EACCES   = Err_t(-int(unix.EACCES))
	EFAULT   = Err_t(-int(unix.EFAULT))
	EBUSY    = Err_t(-int(unix.EBUSY))
	EEXIST   = Err_t(-int(unix.EEXIST))
	ENODEV   = Err_t(-int(unix.ENODEV))
	ENOTDIR  = Err_t(-int(unix.ENOTDIR))
	EISDIR   = Err_t(-int(unix.EISDIR))
	EINVAL   = Err_t(-int(unix.EINVAL))
	ENOSPC   = Err_t(-int(unix.ENOSPC))
	ERANGE   = Err_t(-int(unix.ERANGE))
	EDEADLK  = Err_t(-int(unix.EDEADLK))
	ENOSYS   = Err_t(-int(unix.ENOSYS))
	ENOTEMPTY = Err_t(-int(unix.ENOTEMPTY))
	ENAMETOOLONG = Err_t(-int(unix.ENAMETOOLONG))
	ESPIPE   = Err_t(-int(unix.ESPIPE))
	ECHILD   = Err_t(-int(unix.ECHILD))
	EAGAIN   = Err_t(-int(unix.EAGAIN))
	ENXIO    = Err_t(-int(unix.ENXIO))
	EMFILE   = Err_t(-int(unix.EMFILE))
	ENOTTY   = Err_t(-int(unix.ENOTTY))
	EPIPE    = Err_t(-int(unix.EPIPE))
	ETIMEDOUT = Err_t(-int(unix.ETIMEDOUT))
	ENOTSUP  = Err_t(-int(unix.ENOTSUP))
	ESRCH    = Err_t(-int(unix.ESRCH))
	E2BIG    = Err_t(-int(unix.E2BIG))
	ENOEXEC  = Err_t(-int(unix.ENOEXEC))
	EROFS    = Err_t(-int(unix.EROFS))
	// ENOHEAP is Biscuit's own invented code (res.Resadd_noblock failure);
	// it has no Linux equivalent, so it is given a value outside the
	// errno range user programs would ever see returned for real.
	ENOHEAP = Err_t(-4096)
)

var names = map[Err_t]string{
	EPERM: "EPERM", ENOENT: "ENOENT", EIO: "EIO", EBADF: "EBADF",
	ENOMEM: "ENOMEM", EACCES: "EACCES", EFAULT: "EFAULT", EBUSY: "EBUSY",
	EEXIST: "EEXIST", ENODEV: "ENODEV", ENOTDIR: "ENOTDIR", EISDIR: "EISDIR",
	EINVAL: "EINVAL", ENOSPC: "ENOSPC", ERANGE: "ERANGE", EDEADLK: "EDEADLK",
	ENOSYS: "ENOSYS", ENOTEMPTY: "ENOTEMPTY", ENAMETOOLONG: "ENAMETOOLONG",
	ESPIPE: "ESPIPE", ECHILD: "ECHILD", EAGAIN: "EAGAIN", ENXIO: "ENXIO",
	EMFILE: "EMFILE", ENOTTY: "ENOTTY", EPIPE: "EPIPE", ETIMEDOUT: "ETIMEDOUT",
	ENOTSUP: "ENOTSUP", ESRCH: "ESRCH", E2BIG: "E2BIG", ENOEXEC: "ENOEXEC",
	EROFS: "EROFS", ENOHEAP: "ENOHEAP",
}
