// Package bounds names the call sites that internal/res bounds, mirroring
// Biscuit's bounds.Bounds(bounds.B_ASPACE_T_K2USER_INNER) naming
// (biscuit/src/bounds) so call sites read the same way.
package bounds

import "kernos/internal/res"

const (
	B_VM_T_K2USER_INNER = res.SiteK2User
	B_VM_T_USER2K_INNER = res.SiteUser2K
	B_DIR_SCAN          = res.SiteDirScan
	B_BLOCK_ALLOC       = res.SiteBlockAlloc
	B_INODE_ALLOC       = res.SiteInodeAlloc
)

// Bounds returns the res.Site for a named call site, matching Biscuit's
// bounds.Bounds(id) call shape used right before res.Resadd_noblock.
func Bounds(id res.Site) res.Site {
	return id
}
