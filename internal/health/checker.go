// Package health watches the dev servers the runner spawned and reports
// when they come up or fall over.
package health

import (
	"fmt"
	"net"
	"time"
)

type Dialer interface {
	DialTimeout(network, address string, timeout time.Duration) (net.Conn, error)
}

type NetDialer struct{}

func (NetDialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, address, timeout)
}

// Checker decides whether a spawned server is answering.
type Checker interface {
	Check(port int, timeout time.Duration) error
}

// TCPChecker probes 127.0.0.1:<port>; dev servers only ever bind locally.
type TCPChecker struct {
	Dialer Dialer
}

func (c *TCPChecker) Check(port int, timeout time.Duration) error {
	if c == nil || c.Dialer == nil {
		return fmt.Errorf("missing dialer")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	if timeout <= 0 {
		return fmt.Errorf("invalid timeout: %s", timeout)
	}

	conn, err := c.Dialer.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), timeout)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}
