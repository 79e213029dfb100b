package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

func dialUDP(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
	c, err := net.DialUDP(network, laddr, raddr)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UDP fires every alert as a single JSON datagram (an AlertMessage) at a
// fixed address, typically a LAN display or a radio gateway. Delivery is
// not confirmed; only local write errors are reported.
type UDP struct {
	dest string
	conn udpConn
	now  func() time.Time
}

func NewUDP(dest string) (*UDP, error) {
	return newUDP(dest, net.ResolveUDPAddr, dialUDP)
}

func newUDP(dest string, resolve resolveFunc, dial dialFunc) (*UDP, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("notify: resolve udp dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("notify: dial udp: %w", err)
	}
	return &UDP{dest: dest, conn: conn, now: time.Now}, nil
}

func (u *UDP) Send(ctx context.Context, dest, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(AlertMessage{Destination: dest, Body: body, SentAt: u.now().UTC()})
	if err != nil {
		return fmt.Errorf("udp: marshal alert: %w", err)
	}
	if _, err := u.conn.Write(payload); err != nil {
		return fmt.Errorf("udp: write %s: %w", u.dest, err)
	}
	return nil
}

func (u *UDP) Close() error {
	if u == nil || u.conn == nil {
		return nil
	}
	return u.conn.Close()
}
