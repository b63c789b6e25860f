package upstream

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

// Source opens the upstream byte stream.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// TCPSource reads NMEA from a TCP service such as gpsd's raw port or a
// receiver's network output.
type TCPSource struct {
	Host        string
	Service     string
	DialTimeout time.Duration
}

func (s TCPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return Connect(ctx, s.Host, s.Service, s.DialTimeout)
}

func (s TCPSource) String() string { return "tcp://" + s.Host + ":" + s.Service }

// SerialSource reads NMEA from a serial device, 8N1.
type SerialSource struct {
	Device string
	Baud   uint
}

func (s SerialSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.Device == "" {
		return nil, fmt.Errorf("serial device is required")
	}
	port, err := serial.Open(serial.OpenOptions{
		PortName:        s.Device,
		BaudRate:        s.Baud,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", s.Device, err)
	}
	return port, nil
}

func (s SerialSource) String() string { return fmt.Sprintf("serial://%s@%d", s.Device, s.Baud) }
