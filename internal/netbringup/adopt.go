package netbringup

import (
	"fmt"
	"net"
)

// Adopt stores sock as the active connection and runs staged-connection
// inference on it via infer (spec.md §4.1 adopt / §4.2).
func Adopt(conn net.Conn, infer func(net.Conn) (ConnInfo, error)) (ConnInfo, error) {
	info, err := infer(conn)
	if err != nil {
		return ConnInfo{}, fmt.Errorf("netbringup: adopt: infer origin: %w", err)
	}
	info.Conn = conn
	return info, nil
}
