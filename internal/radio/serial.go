package radio

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// Port is the minimal surface needed from a serial device.
type Port interface {
	io.ReadWriter
	io.Closer
}

// SerialBridge talks to a radio modem attached over a serial line. The modem
// firmware speaks a line protocol:
//
//	RX,<rssi>,<hex payload>   a received packet
//	TX,<hex payload>          transmit request
//
// Any other line (boot banners, OK acknowledgements) is ignored.
type SerialBridge struct {
	port   Port
	logger *slog.Logger

	lines   chan string
	done    chan struct{}
	failed  chan struct{}
	readErr error

	writeMu   sync.Mutex
	closeOnce sync.Once
	rssi      atomic.Int64
}

// OpenSerial opens the device at path as an 8N1 line at the given baud rate.
func OpenSerial(path string, baud int, logger *slog.Logger) (*SerialBridge, error) {
	if baud <= 0 {
		baud = 115200
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	return NewSerialBridge(port, logger), nil
}

// NewSerialBridge starts reading lines from port in the background.
func NewSerialBridge(port Port, logger *slog.Logger) *SerialBridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &SerialBridge{
		port:   port,
		logger: logger,
		lines:  make(chan string, 16),
		done:   make(chan struct{}),
		failed: make(chan struct{}),
	}
	go b.readLoop()
	return b
}

func (b *SerialBridge) readLoop() {
	scan := bufio.NewScanner(b.port)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		select {
		case b.lines <- line:
		case <-b.done:
			return
		}
	}
	err := scan.Err()
	if err == nil {
		err = io.EOF
	}
	b.readErr = err
	close(b.failed)
}

func (b *SerialBridge) Receive(ctx context.Context, timeout time.Duration) (Packet, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-b.done:
			return Packet{}, ErrClosed
		default:
		}

		select {
		case <-ctx.Done():
			return Packet{}, ctx.Err()
		case <-b.done:
			return Packet{}, ErrClosed
		case line := <-b.lines:
			pkt, ok, err := parseRXLine(line)
			if err != nil {
				return Packet{}, err
			}
			if !ok {
				b.logger.Debug("serial bridge: ignoring line", "line", line)
				continue
			}
			pkt.ReceivedAt = time.Now()
			b.rssi.Store(int64(pkt.RSSI))
			return pkt, nil
		case <-b.failed:
			return Packet{}, fmt.Errorf("serial bridge read: %w", b.readErr)
		case <-timer.C:
			return Packet{}, ErrNoData
		}
	}
}

func (b *SerialBridge) SignalStrength() int {
	return int(b.rssi.Load())
}

func (b *SerialBridge) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-b.done:
		return ErrClosed
	default:
	}

	line := "TX," + hex.EncodeToString(payload) + "\n"

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	n, err := io.WriteString(b.port, line)
	if err != nil {
		return fmt.Errorf("serial bridge write: %w", err)
	}
	if n != len(line) {
		return fmt.Errorf("serial bridge write: short write %d/%d", n, len(line))
	}
	return nil
}

// Close stops the reader and closes the port. Safe to call more than once.
func (b *SerialBridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.port.Close()
	})
	return err
}

// parseRXLine reports ok=false for lines that are not receive notifications.
func parseRXLine(line string) (Packet, bool, error) {
	if !strings.HasPrefix(line, "RX,") {
		return Packet{}, false, nil
	}
	parts := strings.SplitN(line, ",", 3)
	if len(parts) != 3 {
		return Packet{}, false, fmt.Errorf("serial bridge: malformed RX line %q", line)
	}
	rssi, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Packet{}, false, fmt.Errorf("serial bridge: bad rssi in %q: %w", line, err)
	}
	payload, err := hex.DecodeString(strings.TrimSpace(parts[2]))
	if err != nil {
		return Packet{}, false, fmt.Errorf("serial bridge: bad payload in %q: %w", line, err)
	}
	return Packet{Payload: payload, RSSI: rssi}, true, nil
}
