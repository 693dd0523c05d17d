package hostfs

import (
	"fmt"
	"slices"
)

// Principal is the non-root context the audit evaluates writability for.
type Principal struct {
	UID  uint32
	GIDs []uint32
	// Unprivileged stands for "any unprivileged user" and is used when the
	// audit itself runs as root, where a concrete uid answers nothing useful.
	Unprivileged bool
}

// AnyUnprivileged returns the principal that matches every non-root account.
func AnyUnprivileged() Principal {
	return Principal{Unprivileged: true}
}

// CanWrite reports whether the principal can modify fi through its mode bits.
func (p Principal) CanWrite(fi FileInfo) bool {
	perm := fi.Mode.Perm()
	if p.Unprivileged {
		if fi.UID != 0 && perm&0o200 != 0 {
			return true
		}
		return WritableByNonRoot(fi)
	}

	switch {
	case fi.UID == p.UID:
		return perm&0o200 != 0
	case slices.Contains(p.GIDs, fi.GID):
		return perm&0o020 != 0
	default:
		return perm&0o002 != 0
	}
}

func (p Principal) String() string {
	if p.Unprivileged {
		return "any unprivileged user"
	}
	return fmt.Sprintf("uid=%d gids=%v", p.UID, p.GIDs)
}
