package netbringup

import (
	"net"
	"testing"
)

func TestFlushDrainsLeftoverBytesThenReturns(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		server.Write([]byte("stager leftover junk"))
		server.Close()
	}()

	if err := Flush(client); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
