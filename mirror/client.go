package mirror

import (
	"errors"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Client writes holding registers on a Modbus server.
type Client interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
	Close() error
}

// TCPClient is a single Modbus TCP connection. It serializes requests because the unit id
// lives on the shared handler.
type TCPClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

func NewTCPClient(address string, timeout time.Duration) (*TCPClient, error) {
	if address == "" {
		return nil, errors.New("mirror: address required")
	}

	h := modbus.NewTCPClientHandler(address)
	h.Timeout = timeout

	if err := h.Connect(); err != nil {
		return nil, err
	}

	return &TCPClient{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

func (c *TCPClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	_, err := c.client.WriteMultipleRegisters(addr, uint16(len(regs)), packRegisters(regs))
	return err
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
