// Package proc implements the process model and the round-robin
// scheduler: a fixed-size process table, fork/exec/wait/exit, and the
// cooperative-preemption checkpoint the syscall layer consults on return.
//
// Grounded on the proc_new/_thread_new/start_thread/sched_add/
// mywait.wait_init protocol threaded throughout Biscuit's boot sequence
// (other_examples' justanotherdot-biscuit main.go) and on this kernel's own
// exec-is-spawn decision (SPEC_FULL.md §9): unlike POSIX execve, Exec here
// never replaces the caller's image in place, it produces a new process
// the way Biscuit's boot-time exec() closure calls proc_new then
// sys_execv1 before adding the result to the scheduler.
package proc

import (
	"sync"

	"kernos/internal/errno"
	"kernos/internal/klog"
	"kernos/internal/mem/vmm"
	"kernos/internal/ustr"
)

// State is one of a process's fixed lifecycle states.
type State int

const (
	Free State = iota
	Ready
	Running
	Blocked
	Zombie
)

func (s State) String() string {
	switch s {
	case Free:
		return "FREE"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Zombie:
		return "ZOMBIE"
	default:
		return "?"
	}
}

// ProcMax bounds the process table, a fixed size the way Biscuit bounds
// live threads against limits.Syslimit.Sysprocs rather than growing
// without limit; this port's table is small since it's sized for a hosted
// test kernel, not a production host.
const ProcMax = 64

// Pid identifies a process. Pid 1 is reserved for init the way Biscuit
// special-cases its first spawned process.
type Pid int32

// NoPid is the wait4 "any child" pid argument.
const NoPid Pid = -1

// Trapframe stands in for the x86_64 register file a real trap gate would
// save: the set of general-purpose registers the syscall ABI reads
// arguments from and the saved user Rip/Rflags a context switch restores.
type Trapframe struct {
	Rax, Rbx, Rcx, Rdx, Rsi, Rdi, Rbp, Rsp uint64
	R8, R9, R10, R11, R12, R13, R14, R15  uint64
	Rip, Rflags                           uint64
}

// Arg returns syscall argument i (0-5), following the Linux x86_64 ABI's
// register order: rdi, rsi, rdx, r10, r8, r9 (r10 takes rcx's usual slot
// since the syscall instruction clobbers rcx).
func (tf *Trapframe) Arg(i int) uint64 {
	switch i {
	case 0:
		return tf.Rdi
	case 1:
		return tf.Rsi
	case 2:
		return tf.Rdx
	case 3:
		return tf.R10
	case 4:
		return tf.R8
	case 5:
		return tf.R9
	default:
		return 0
	}
}

// SyscallNo returns the dispatch table index the way the ABI places it in
// rax before the syscall instruction.
func (tf *Trapframe) SyscallNo() uint64 { return tf.Rax }

// SetReturn writes a syscall's result back into rax, where the return
// path picks it up.
func (tf *Trapframe) SetReturn(v int64) { tf.Rax = uint64(v) }

// Proc is one process table entry. Fields other than Pid/Ppid/AS are only
// ever touched by the syscall layer on behalf of the single logical CPU
// spec §5 describes, so they carry no additional locking of their own;
// state transitions that a waiting parent can observe (see Wait/Exit) go
// through mu.
type Proc struct {
	Pid  Pid
	Ppid Pid
	AS   vmm.Root
	Cwd  ustr.Ustr
	Tf   Trapframe

	// Brk/MmapNext/FSBase are owned by internal/syscall's brk, mmap, and
	// arch_prctl handlers.
	Brk      uint64
	MmapNext uint64
	FSBase   uint64

	mu          sync.Mutex
	state       State
	exitStatus  int
	needResched bool
	children    map[Pid]bool
	exitc       chan struct{}
}

// State reports p's current lifecycle state.
func (p *Proc) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// NeedResched reports whether a tick source has requested this process
// yield at its next syscall-return checkpoint (spec §4.8/§5).
func (p *Proc) NeedResched() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.needResched
}

// SetNeedResched sets or clears the resched flag.
func (p *Proc) SetNeedResched(v bool) {
	p.mu.Lock()
	p.needResched = v
	p.mu.Unlock()
}

// Table is the fixed-size process table. It keeps no scheduler cursor of
// its own: Schedule is handed the current pid and sweeps from the slot
// after it, matching spec §4.8's "(current+1) mod PROC_MAX" sweep.
type Table struct {
	mu    sync.Mutex
	vmm   *vmm.Manager
	procs [ProcMax]*Proc
}

// NewTable returns an empty table over the given address-space manager.
func NewTable(m *vmm.Manager) *Table {
	return &Table{vmm: m}
}

func (t *Table) allocSlotLocked() (int, errno.Err_t) {
	for i := 0; i < ProcMax; i++ {
		if t.procs[i] == nil {
			return i, 0
		}
	}
	return 0, errno.ENOMEM
}

func (t *Table) getLocked(pid Pid) (*Proc, bool) {
	if pid <= 0 || int(pid) > ProcMax {
		return nil, false
	}
	p := t.procs[pid-1]
	return p, p != nil
}

// Get looks up pid in the table.
func (t *Table) Get(pid Pid) (*Proc, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getLocked(pid)
}

func newProc(idx int, ppid Pid, root vmm.Root, cwd ustr.Ustr) *Proc {
	return &Proc{
		Pid:      Pid(idx + 1),
		Ppid:     ppid,
		AS:       root,
		Cwd:      cwd,
		state:    Ready,
		children: make(map[Pid]bool),
		exitc:    make(chan struct{}),
	}
}

// Spawn creates a brand-new process with a fresh, empty address space.
// It is used both for the very first init process at boot and, via Exec,
// for every later "load a new image" request — this port never replaces
// a running process's image in place.
func (t *Table) Spawn(ppid Pid, cwd ustr.Ustr) (*Proc, errno.Err_t) {
	root, err := t.vmm.CreateAddressSpace()
	if err != 0 {
		return nil, err
	}
	t.mu.Lock()
	idx, err := t.allocSlotLocked()
	if err != 0 {
		t.mu.Unlock()
		t.vmm.DestroyAddressSpace(root)
		return nil, err
	}
	p := newProc(idx, ppid, root, cwd)
	t.procs[idx] = p
	parent, hasParent := t.getLocked(ppid)
	t.mu.Unlock()

	if hasParent {
		parent.mu.Lock()
		parent.children[p.Pid] = true
		parent.mu.Unlock()
	}
	klog.Debugf(klog.Proc, "proc: spawned pid=%d ppid=%d\n", p.Pid, ppid)
	return p, 0
}

// Fork clones parent's address space and cwd into a fresh table slot. The
// child's saved trapframe reads rax=0, the fork return-value convention;
// the parent's own return (the child's pid) is set by the syscall
// handler, not here.
func (t *Table) Fork(parent *Proc) (*Proc, errno.Err_t) {
	dstRoot, err := t.vmm.CloneAddressSpace(parent.AS)
	if err != 0 {
		return nil, err
	}
	t.mu.Lock()
	idx, err := t.allocSlotLocked()
	if err != 0 {
		t.mu.Unlock()
		t.vmm.DestroyUserMappings(dstRoot)
		t.vmm.DestroyAddressSpace(dstRoot)
		return nil, err
	}

	parent.mu.Lock()
	childTf := parent.Tf
	childCwd := append(ustr.Ustr(nil), parent.Cwd...)
	parent.mu.Unlock()
	childTf.Rax = 0

	child := newProc(idx, parent.Pid, dstRoot, childCwd)
	child.Tf = childTf
	child.Brk = parent.Brk
	t.procs[idx] = child
	t.mu.Unlock()

	parent.mu.Lock()
	parent.children[child.Pid] = true
	parent.mu.Unlock()
	klog.Debugf(klog.Proc, "proc: forked pid=%d from ppid=%d\n", child.Pid, parent.Pid)
	return child, 0
}

// Exec implements this kernel's spawn semantics (SPEC_FULL.md §9): it
// allocates a fresh address space, invokes load to populate it (the ELF
// loader lives in internal/syscall, which owns the image format), and
// returns a brand-new child process whose trapframe resumes at the entry
// point load reports. The caller (the exec'ing process) is left
// completely untouched.
func (t *Table) Exec(caller *Proc, load func(root vmm.Root) (entry uint64, err errno.Err_t)) (*Proc, errno.Err_t) {
	root, err := t.vmm.CreateAddressSpace()
	if err != 0 {
		return nil, err
	}
	entry, err := load(root)
	if err != 0 {
		t.vmm.DestroyUserMappings(root)
		t.vmm.DestroyAddressSpace(root)
		return nil, err
	}

	t.mu.Lock()
	idx, err := t.allocSlotLocked()
	if err != 0 {
		t.mu.Unlock()
		t.vmm.DestroyUserMappings(root)
		t.vmm.DestroyAddressSpace(root)
		return nil, err
	}
	child := newProc(idx, caller.Pid, root, append(ustr.Ustr(nil), caller.Cwd...))
	child.Tf.Rip = entry
	t.procs[idx] = child
	t.mu.Unlock()

	caller.mu.Lock()
	caller.children[child.Pid] = true
	caller.mu.Unlock()
	klog.Debugf(klog.Proc, "proc: exec spawned pid=%d entry=%#x\n", child.Pid, entry)
	return child, 0
}

// Exit transitions p to Zombie, reparents its own children to pid 1 (or
// simply drops them if init doesn't exist, e.g. in tests), and wakes
// anyone blocked in Wait for it.
func (t *Table) Exit(p *Proc, status int) {
	p.mu.Lock()
	if p.state == Zombie {
		p.mu.Unlock()
		return
	}
	p.state = Zombie
	p.exitStatus = status
	kids := make([]Pid, 0, len(p.children))
	for c := range p.children {
		kids = append(kids, c)
	}
	p.children = nil
	close(p.exitc)
	p.mu.Unlock()

	if initp, ok := t.Get(1); ok && initp.Pid != p.Pid {
		initp.mu.Lock()
		for _, c := range kids {
			initp.children[c] = true
		}
		initp.mu.Unlock()
	}
	klog.Debugf(klog.Proc, "proc: pid=%d exited status=%d\n", p.Pid, status)
}

// reap frees a zombie's table slot and address space once its parent has
// collected the exit status through Wait.
func (t *Table) reap(pid Pid) {
	t.mu.Lock()
	p, ok := t.getLocked(pid)
	if ok {
		t.procs[pid-1] = nil
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	t.vmm.DestroyUserMappings(p.AS)
	t.vmm.DestroyAddressSpace(p.AS)
}

// Wait implements wait4: pid == NoPid means "any child," nohang mirrors
// WNOHANG. It blocks outside any table lock until a matching child
// becomes a zombie, then reaps it and reports its exit status.
//
// When more than one candidate child is still running, Wait blocks until
// any one of them exits (one forwarding goroutine per candidate's exit
// channel, rather than a reflect.Select over all of them) and then
// rescans.
func (t *Table) Wait(parent *Proc, pid Pid, nohang bool) (Pid, int, errno.Err_t) {
	for {
		parent.mu.Lock()
		if pid != NoPid {
			if _, ok := parent.children[pid]; !ok {
				parent.mu.Unlock()
				return 0, 0, errno.ECHILD
			}
		} else if len(parent.children) == 0 {
			parent.mu.Unlock()
			return 0, 0, errno.ECHILD
		}

		var zombie *Proc
		var waitOn []chan struct{}
		for cpid := range parent.children {
			if pid != NoPid && cpid != pid {
				continue
			}
			c, ok := t.Get(cpid)
			if !ok {
				continue
			}
			if c.State() == Zombie {
				zombie = c
				break
			}
			waitOn = append(waitOn, c.exitc)
		}
		parent.mu.Unlock()

		if zombie != nil {
			parent.mu.Lock()
			delete(parent.children, zombie.Pid)
			parent.mu.Unlock()
			zombie.mu.Lock()
			status := zombie.exitStatus
			zombie.mu.Unlock()
			t.reap(zombie.Pid)
			return zombie.Pid, status, 0
		}
		if nohang {
			return 0, 0, 0
		}
		if len(waitOn) == 0 {
			return 0, 0, errno.ECHILD
		}
		woke := make(chan struct{}, len(waitOn))
		for _, c := range waitOn {
			go func(c chan struct{}) {
				<-c
				woke <- struct{}{}
			}(c)
		}
		<-woke
	}
}

// Schedule returns the next Ready process strictly after current in
// round-robin order, matching spec §4.8's "(current+1) mod PROC_MAX"
// sweep; it returns nil if nothing is runnable.
func (t *Table) Schedule(current Pid) *Proc {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Slot i holds pid i+1, so current's own slot is current-1.
	start := (int(current) - 1 + ProcMax) % ProcMax
	for i := 1; i <= ProcMax; i++ {
		idx := (start + i) % ProcMax
		p := t.procs[idx]
		if p == nil {
			continue
		}
		p.mu.Lock()
		ready := p.state == Ready
		p.mu.Unlock()
		if ready {
			return p
		}
	}
	return nil
}

// Run marks p Running, the scheduler's dispatch step.
func (t *Table) Run(p *Proc) {
	p.mu.Lock()
	p.state = Running
	p.mu.Unlock()
}

// Ready marks p Ready again (a timeslice expiring without blocking),
// unless it has already exited.
func (t *Table) Ready(p *Proc) {
	p.mu.Lock()
	if p.state != Zombie {
		p.state = Ready
	}
	p.mu.Unlock()
}

// Block marks p Blocked, e.g. while waiting on a pipe or a child.
func (t *Table) Block(p *Proc) {
	p.mu.Lock()
	p.state = Blocked
	p.mu.Unlock()
}

// Counts tallies live processes by state, used by internal/diag's
// profile sample to report scheduler occupancy alongside PMM usage.
func (t *Table) Counts() map[State]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[State]int, 5)
	for _, p := range t.procs {
		if p == nil {
			continue
		}
		out[p.State()]++
	}
	return out
}
