package netbringup

import (
	"errors"
	"io"
	"net"
	"time"
)

// flushReadSize is the maximum chunk read per drain iteration (spec.md
// §4.7: "recv up to 4096 bytes").
const flushReadSize = 4096

// flushTick is the per-iteration select timeout (spec.md §4.7: "1-second
// select").
const flushTick = 1 * time.Second

// Flush performs a bounded read drain before the TLS handshake begins,
// discarding any stager-injected bytes left on the wire that would
// otherwise corrupt the handshake (spec.md §4.7). It stops on a read
// timeout with no data, or on a zero-length read (peer closed).
func Flush(conn net.Conn) error {
	buf := make([]byte, flushReadSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(flushTick)); err != nil {
			return err
		}

		n, err := conn.Read(buf)
		if n == 0 {
			// Either an immediate EOF (peer closed) or the 1s deadline
			// expired with nothing to read — either way the drain is done.
			_ = conn.SetReadDeadline(time.Time{})
			if err != nil && !isTimeout(err) && !errors.Is(err, io.EOF) {
				return err
			}
			return nil
		}
		// Non-zero read: there was stager leftover data, discard it and
		// keep draining.
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	return ok && te.Timeout()
}
