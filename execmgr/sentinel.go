package execmgr

import (
	"fmt"
	"net"
	"strings"
)

// newSentinelListener opens a fresh loopback port for one command's
// end-of-command signal, per the PersistentManager sentinel protocol: the
// child process dials back and sends "ok" or "error".
func newSentinelListener() (net.Listener, string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", err
	}
	return ln, ln.Addr().String(), nil
}

// acceptSentinel blocks for the single connection ln expects and reports
// the trimmed payload it sent. It closes result with no value if Accept
// itself failed (the listener was closed out from under it).
func acceptSentinel(ln net.Listener, result chan<- string) {
	conn, err := ln.Accept()
	if err != nil {
		close(result)
		return
	}
	defer conn.Close()

	buf := make([]byte, 16)
	n, _ := conn.Read(buf)
	result <- strings.TrimSpace(string(buf[:n]))
}

// sentinelPingCommand is the line written to the child's stdin instructing
// its embedded helper to dial addr and report completion.
func sentinelPingCommand(addr string) string {
	return fmt.Sprintf("__flowkernel_helper.ping(%q)", addr)
}
