package diag

import (
	"bytes"

	"github.com/google/pprof/profile"

	"kernos/internal/errno"
	"kernos/internal/fs/vfs"
	"kernos/internal/mem/pmm"
	"kernos/internal/proc"
)

// Sources bundles the live subsystems a KProfile snapshot samples.
type Sources struct {
	PMM   *pmm.Allocator
	Procs *proc.Table
}

// KProfile is the kernel profile file, a read-only vfs.File that boot
// installs directly on a descriptor (it is not a ramfs node). Its first
// Read or Seek serializes a snapshot of PMM/scheduler counters as a gzipped
// pprof profile, replacing Biscuit's hand-rolled bprof_t hex dumper with
// the real profile.Profile encoding it was headed towards.
type KProfile struct {
	src Sources
	buf *bytes.Reader
}

// New returns a KProfile sampling src. The snapshot is taken on the first
// Read or Seek and kept until Reopen drops it.
func New(src Sources) *KProfile {
	return &KProfile{src: src}
}

func buildProfile(src Sources) (*profile.Profile, error) {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "frames_free", Unit: "count"},
			{Type: "frames_total", Unit: "count"},
		},
		PeriodType: &profile.ValueType{Type: "kprofile", Unit: "sample"},
		Period:     1,
	}

	fn := &profile.Function{ID: 1, Name: "kernel"}
	loc := &profile.Location{ID: 1, Line: []profile.Line{{Function: fn, Line: 1}}}
	p.Function = []*profile.Function{fn}
	p.Location = []*profile.Location{loc}

	free, total := int64(0), int64(0)
	if src.PMM != nil {
		free = src.PMM.FreeBytes() / pmm.PGSIZE
		total = src.PMM.TotalBytes() / pmm.PGSIZE
	}
	p.Sample = append(p.Sample, &profile.Sample{
		Location: []*profile.Location{loc},
		Value:    []int64{free, total},
		Label:    map[string][]string{"subsystem": {"pmm"}},
	})

	if src.Procs != nil {
		for state, n := range src.Procs.Counts() {
			p.Sample = append(p.Sample, &profile.Sample{
				Location: []*profile.Location{loc},
				Value:    []int64{int64(n), 0},
				Label:    map[string][]string{"subsystem": {"sched"}, "state": {state.String()}},
			})
		}
	}
	return p, p.CheckValid()
}

func (k *KProfile) ensure() errno.Err_t {
	if k.buf != nil {
		return 0
	}
	p, err := buildProfile(k.src)
	if err != nil {
		return errno.EIO
	}
	var out bytes.Buffer
	if err := p.Write(&out); err != nil {
		return errno.EIO
	}
	k.buf = bytes.NewReader(out.Bytes())
	return 0
}

func (k *KProfile) Read(buf []byte) (int, errno.Err_t) {
	if err := k.ensure(); err != 0 {
		return 0, err
	}
	n, rerr := k.buf.Read(buf)
	if rerr != nil {
		return n, 0
	}
	return n, 0
}

func (k *KProfile) Write(buf []byte) (int, errno.Err_t) { return 0, errno.EROFS }

func (k *KProfile) Seek(off int64, whence int) (int64, errno.Err_t) {
	if err := k.ensure(); err != 0 {
		return 0, err
	}
	n, serr := k.buf.Seek(off, whence)
	if serr != nil {
		return 0, errno.EINVAL
	}
	return n, 0
}

func (k *KProfile) Truncate(size int64) errno.Err_t { return errno.EROFS }

func (k *KProfile) Readdir() ([]vfs.Dirent, errno.Err_t) { return nil, errno.ENOTDIR }

func (k *KProfile) Stat() (vfs.Stat, errno.Err_t) {
	size := int64(0)
	if k.buf != nil {
		size = k.buf.Size()
	}
	return vfs.Stat{Mode: 0444, Size: size}, 0
}

func (k *KProfile) Close() errno.Err_t { return 0 }

// Reopen resets the snapshot so the next read resamples live counters,
// rather than replaying the previous opener's frozen view.
func (k *KProfile) Reopen() errno.Err_t {
	k.buf = nil
	return 0
}
