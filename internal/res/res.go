// Package res bounds the number of outstanding resource-consuming
// operations so a runaway copy-in/copy-out or allocation loop fails loudly
// instead of spinning forever, mirroring Biscuit's res.Resadd_noblock /
// bounds.Bounds pair (biscuit/src/res, biscuit/src/bounds).
package res

import (
	"golang.org/x/sync/semaphore"
)

// Site identifies a bounded call site the way bounds.Bounds(...) names one
// via an enum in Biscuit; here a small set of named constants serves the
// same purpose.
type Site int

const (
	SiteK2User Site = iota
	SiteUser2K
	SiteDirScan
	SiteBlockAlloc
	SiteInodeAlloc
)

// budget bounds each site independently. The numbers mirror Biscuit's
// liveness argument: any single compound operation may not loop more than
// a generous fixed number of times before something is badly wrong.
const defaultBudget = 1 << 20

var sems = map[Site]*semaphore.Weighted{
	SiteK2User:     semaphore.NewWeighted(defaultBudget),
	SiteUser2K:     semaphore.NewWeighted(defaultBudget),
	SiteDirScan:    semaphore.NewWeighted(defaultBudget),
	SiteBlockAlloc: semaphore.NewWeighted(defaultBudget),
	SiteInodeAlloc: semaphore.NewWeighted(defaultBudget),
}

// AddNoBlock claims one unit of the site's budget without blocking. It
// returns false when the budget is exhausted, the same contract as
// Biscuit's Resadd_noblock — callers translate a false into -ENOHEAP.
func AddNoBlock(s Site) bool {
	return sems[s].TryAcquire(1)
}

// Release returns one unit to the site's budget. Every successful
// AddNoBlock for a bounded loop iteration must be paired with a Release
// once that iteration's resources are no longer needed, so the budget
// reflects in-flight work, not cumulative calls.
func Release(s Site) {
	sems[s].Release(1)
}

// Reset replaces a site's budget with a fresh one of n units.
func Reset(s Site, n int64) {
	sems[s] = semaphore.NewWeighted(n)
}

// Available reports whether at least n units remain, without consuming them.
func Available(s Site, n int64) bool {
	if sems[s].TryAcquire(n) {
		sems[s].Release(n)
		return true
	}
	return false
}
