package radio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const maxDatagram = 2048

// UDPSource receives one frame per datagram. It stands in for the radio on a
// bench setup; RSSI is always 0.
type UDPSource struct {
	conn *net.UDPConn

	mu   sync.Mutex
	buf  []byte
	rssi atomic.Int64
}

func ListenUDP(addr string) (*UDPSource, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	return &UDPSource{conn: conn, buf: make([]byte, maxDatagram)}, nil
}

// Addr is the bound local address.
func (s *UDPSource) Addr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *UDPSource) Receive(ctx context.Context, timeout time.Duration) (Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Packet{}, err
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return Packet{}, ErrClosed
		}
		return Packet{}, fmt.Errorf("udp set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, _, err := s.conn.ReadFromUDP(s.buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Packet{}, ctxErr
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return Packet{}, ErrNoData
		}
		if errors.Is(err, net.ErrClosed) {
			return Packet{}, ErrClosed
		}
		return Packet{}, fmt.Errorf("udp read: %w", err)
	}

	payload := make([]byte, n)
	copy(payload, s.buf[:n])
	s.rssi.Store(0)
	return Packet{Payload: payload, ReceivedAt: time.Now()}, nil
}

func (s *UDPSource) SignalStrength() int {
	return int(s.rssi.Load())
}

func (s *UDPSource) Close() error {
	return s.conn.Close()
}

// UDPSender writes each frame as a single datagram to a fixed peer.
type UDPSender struct {
	conn *net.UDPConn
}

func DialUDP(addr string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("dial udp %s: %w", addr, err)
	}
	return &UDPSender{conn: conn}, nil
}

func (s *UDPSender) Send(ctx context.Context, payload []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("udp set deadline: %w", err)
		}
	}
	if _, err := s.conn.Write(payload); err != nil {
		return fmt.Errorf("udp write: %w", err)
	}
	return nil
}

func (s *UDPSender) Close() error {
	return s.conn.Close()
}
