package vfs

import (
	"sync"

	"kernos/internal/circbuf"
	"kernos/internal/errno"
)

const pipeBufSize = 16 * 1024

// pipe is the shared ring two pipeEnd values read/write through, backed
// by circbuf.Circbuf the same way Biscuit's TTY/pipe code buffers bytes
// (biscuit/src/circbuf/circbuf.go); blocking is added here since
// circbuf itself assumes an external synchronization point.
type pipe struct {
	mu      sync.Mutex
	cond    *sync.Cond
	cb      *circbuf.Circbuf
	readers int
	writers int
}

func newPipe() *pipe {
	p := &pipe{cb: circbuf.New(make([]byte, pipeBufSize)), readers: 1, writers: 1}
	p.cond = sync.NewCond(&p.mu)
	return p
}

type bufReader struct{ b []byte }

func (r *bufReader) Uioread(dst []byte) (int, errno.Err_t) {
	n := copy(dst, r.b)
	r.b = r.b[n:]
	return n, 0
}

type bufWriter struct {
	b []byte
	n int
}

func (w *bufWriter) Uiowrite(src []byte) (int, errno.Err_t) {
	n := copy(w.b[w.n:], src)
	w.n += n
	return n, 0
}

func (p *pipe) write(data []byte) (int, errno.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for len(data) > 0 {
		if p.readers == 0 {
			return total, errno.EPIPE
		}
		if p.cb.Full() {
			p.cond.Wait()
			continue
		}
		r := &bufReader{b: data}
		n, err := p.cb.Copyin(r)
		if err != 0 {
			return total, err
		}
		total += n
		data = data[n:]
		p.cond.Broadcast()
	}
	return total, 0
}

func (p *pipe) read(buf []byte) (int, errno.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if !p.cb.Empty() {
			w := &bufWriter{b: buf}
			n, err := p.cb.CopyoutN(w, len(buf))
			p.cond.Broadcast()
			return n, err
		}
		if p.writers == 0 {
			return 0, 0 // EOF
		}
		p.cond.Wait()
	}
}

func (p *pipe) closeReader() {
	p.mu.Lock()
	p.readers--
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *pipe) closeWriter() {
	p.mu.Lock()
	p.writers--
	p.cond.Broadcast()
	p.mu.Unlock()
}

// pipeEnd is one end of a pipe, implementing File. Read is invalid on a
// write end and vice versa, matching the O_RDONLY/O_WRONLY split a real
// pipe(2) pair enforces.
type pipeEnd struct {
	p      *pipe
	reader bool
	closed bool
}

func (e *pipeEnd) Read(buf []byte) (int, errno.Err_t) {
	if !e.reader {
		return 0, errno.EBADF
	}
	return e.p.read(buf)
}

func (e *pipeEnd) Write(buf []byte) (int, errno.Err_t) {
	if e.reader {
		return 0, errno.EBADF
	}
	return e.p.write(buf)
}

func (e *pipeEnd) Seek(off int64, whence int) (int64, errno.Err_t) {
	return 0, errno.ESPIPE
}

func (e *pipeEnd) Truncate(size int64) errno.Err_t { return errno.EINVAL }

func (e *pipeEnd) Readdir() ([]Dirent, errno.Err_t) { return nil, errno.ENOTDIR }

func (e *pipeEnd) Stat() (Stat, errno.Err_t) {
	return Stat{Mode: 0010000}, 0 // S_IFIFO
}

func (e *pipeEnd) Close() errno.Err_t {
	if e.closed {
		return 0
	}
	e.closed = true
	if e.reader {
		e.p.closeReader()
	} else {
		e.p.closeWriter()
	}
	return 0
}

func (e *pipeEnd) Reopen() errno.Err_t {
	e.p.mu.Lock()
	if e.reader {
		e.p.readers++
	} else {
		e.p.writers++
	}
	e.p.mu.Unlock()
	return 0
}
