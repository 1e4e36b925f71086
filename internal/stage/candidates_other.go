//go:build !linux

package stage

import "net"

// candidateDescriptors yields no candidates on non-Linux platforms: the
// reference's sibling-handle heuristic (Windows handle spacing, Linux fd
// adjacency) does not generalize to Go's fd model outside Linux, so
// inference always falls through to reverse-mode here (spec.md §4.2 edge
// case: "if no candidate is a valid socket, silently conclude
// reverse-mode").
func candidateDescriptors(conn net.Conn) []int {
	return nil
}
