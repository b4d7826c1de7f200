package uart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockI2CBus is a mock implementation of gnublin.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// newTestDevice returns a device wired to a fresh chip simulator with all
// delays shortened.
func newTestDevice(t *testing.T, variant Variant, opts ...SC16IS7x0Opt) (*SC16IS7x0, *simChip) {
	t.Helper()
	sim := newSimChip()
	opts = append([]SC16IS7x0Opt{
		WithResetDelay(0),
		WithPollInterval(time.Microsecond),
	}, opts...)
	return New(sim, variant, opts...), sim
}
