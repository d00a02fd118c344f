// Package serialadc reads analog channels from an ADC co-processor attached
// over a UART.
//
// The co-processor speaks a line protocol: the host sends "READ <ch>" and the
// device answers "OK <ch> <code>" or "ERR <reason>". Codes are 12-bit.
package serialadc

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rbattiston/SNRv9-sub001/internal/hardware"
	"github.com/rbattiston/SNRv9-sub001/internal/types"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	DefaultBaudRate = 115200
	DefaultTimeout  = 200 * time.Millisecond

	// MaxChannel is the highest channel the co-processor multiplexes.
	MaxChannel = 15
	maxCode    = 4095
	maxLineLen = 64
)

// Bridge is an AnalogReader backed by the co-processor.
type Bridge struct {
	rw      io.ReadWriter
	closer  io.Closer
	timeout time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	channels map[int]bool
}

var _ hardware.AnalogReader = (*Bridge)(nil)

// Open opens the serial port and returns a bridge speaking on it.
func Open(port string, baudRate int, timeout time.Duration, logger *zap.Logger) (*Bridge, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	conn, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	// Short reads let the bridge enforce its own per-request deadline.
	if err := conn.SetReadTimeout(10 * time.Millisecond); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	if err := conn.ResetInputBuffer(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reset input buffer: %w", err)
	}

	logger.Info("Serial ADC bridge opened",
		zap.String("port", port),
		zap.Int("baud_rate", baudRate))

	b := New(conn, timeout, logger)
	b.closer = conn
	return b, nil
}

// New wraps an already open stream. Reads on rw must return (0, nil) or
// block briefly when no data is pending.
func New(rw io.ReadWriter, timeout time.Duration, logger *zap.Logger) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bridge{
		rw:       rw,
		timeout:  timeout,
		logger:   logger,
		channels: make(map[int]bool),
	}
}

func (b *Bridge) ConfigureAnalog(pin int) error {
	if pin < 0 || pin > MaxChannel {
		return fmt.Errorf("adc channel %d outside 0-%d: %w", pin, MaxChannel, types.ErrInvalidArgument)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels[pin] = true
	return nil
}

func (b *Bridge) ReadAnalog(pin int) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.channels[pin] {
		return 0, fmt.Errorf("adc channel %d not configured: %w", pin, types.ErrInvalidState)
	}

	if _, err := fmt.Fprintf(b.rw, "READ %d\n", pin); err != nil {
		return 0, fmt.Errorf("adc request channel %d: %w: %w", pin, types.ErrHardwareFault, err)
	}

	line, err := b.readLine()
	if err != nil {
		return 0, fmt.Errorf("adc channel %d: %w", pin, err)
	}

	return parseReply(pin, line)
}

func (b *Bridge) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func (b *Bridge) readLine() (string, error) {
	deadline := time.Now().Add(b.timeout)
	var sb strings.Builder
	buf := make([]byte, 1)

	for {
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no reply within %s: %w", b.timeout, types.ErrTimeout)
		}

		n, err := b.rw.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: %w", types.ErrHardwareFault, err)
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}

		switch c := buf[0]; c {
		case '\n':
			return strings.TrimSpace(sb.String()), nil
		case '\r':
		default:
			if sb.Len() >= maxLineLen {
				return "", fmt.Errorf("reply too long: %w", types.ErrHardwareFault)
			}
			sb.WriteByte(c)
		}
	}
}

func parseReply(pin int, line string) (uint16, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty adc reply: %w", types.ErrHardwareFault)
	}

	switch fields[0] {
	case "OK":
		if len(fields) != 3 {
			return 0, fmt.Errorf("malformed adc reply %q: %w", line, types.ErrHardwareFault)
		}
		ch, err := strconv.Atoi(fields[1])
		if err != nil || ch != pin {
			return 0, fmt.Errorf("adc reply for wrong channel %q: %w", line, types.ErrHardwareFault)
		}
		code, err := strconv.ParseUint(fields[2], 10, 16)
		if err != nil || code > maxCode {
			return 0, fmt.Errorf("adc code out of range %q: %w", line, types.ErrHardwareFault)
		}
		return uint16(code), nil
	case "ERR":
		return 0, fmt.Errorf("adc error %q: %w", strings.Join(fields[1:], " "), types.ErrHardwareFault)
	default:
		return 0, fmt.Errorf("unexpected adc reply %q: %w", line, types.ErrHardwareFault)
	}
}
