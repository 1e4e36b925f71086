//go:build linux

package stage

import (
	"net"
	"syscall"
)

// candidateDescriptors returns the platform-specific set of probable sibling
// handles for the adopted connection's fd, bounded to MaxCandidates
// (spec.md §4.2: "the platform-specific set of probable sibling handles,
// bounded to a small constant K"). On Linux, a stage-0 bootstrap that
// dup2'd or inherited a listening socket typically leaves it adjacent to
// the adopted fd in the process's descriptor table, so the scan walks
// ascending distance from the adopted fd the way spec.md's tie-break rule
// requires ("scan in ascending distance; first matching candidate wins").
func candidateDescriptors(conn net.Conn) []int {
	base, ok := connFD(conn)
	if !ok {
		return nil
	}

	// Up to MaxCandidates descriptors below base, topped up from above base
	// when fewer exist below, emitted nearest first (lower fd on a tie).
	below := min(MaxCandidates, base)
	above := MaxCandidates - below
	var out []int
	for delta := 1; delta <= below || delta <= above; delta++ {
		if delta <= below {
			out = append(out, base-delta)
		}
		if delta <= above {
			out = append(out, base+delta)
		}
	}
	return out
}

func connFD(conn net.Conn) (int, bool) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, false
	}

	var fd int
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return 0, false
	}
	return fd, true
}
