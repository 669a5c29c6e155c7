// Package klog is the kernel's console logger. It keeps Biscuit's own
// texture — terse, printf-style, gated per subsystem by a debug bool
// (mirroring fs.bdev_debug in biscuit/src/fs/blk.go) — rather than adopting
// a structured logging library the teacher never reached for.
package klog

import (
	"fmt"
	"log"
	"os"
)

var std = log.New(os.Stdout, "", 0)

// Debug gates, one per subsystem, flippable at boot like bdev_debug.
var (
	PMM   bool
	VMM   bool
	Block bool
	FS    bool
	Proc  bool
	Sys   bool
)

// Printf writes an unconditional kernel log line.
func Printf(format string, args ...interface{}) {
	std.Printf(format, args...)
}

// Debugf writes format to the console only when gate is true.
func Debugf(gate bool, format string, args ...interface{}) {
	if gate {
		std.Output(2, fmt.Sprintf(format, args...))
	}
}

// Panic renders a fatal kernel message and halts the process, matching
// spec §7's "print diagnostic state and halt" for kernel-mode exceptions.
func Panic(format string, args ...interface{}) {
	std.Printf("PANIC: "+format, args...)
	panic(fmt.Sprintf(format, args...))
}
