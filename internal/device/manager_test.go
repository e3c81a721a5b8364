// internal/device/manager_test.go
package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T) (*Manager, *fakeRunner) {
	t.Helper()
	fr := &fakeRunner{out: map[string][]byte{}}
	m := NewManager("adb", zaptest.NewLogger(t))
	m.run = fr.run
	return m, fr
}

func TestManager_Refresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("parses serials in the device state", func(t *testing.T) {
		t.Parallel()
		m, fr := newTestManager(t)
		fr.out["devices"] = []byte("List of devices attached\nemulator-5554\tdevice\n0123456789ABCDEF\tdevice\n")

		serials, err := m.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"emulator-5554", "0123456789ABCDEF"}, serials)
	})

	t.Run("skips offline and unauthorized devices", func(t *testing.T) {
		t.Parallel()
		m, fr := newTestManager(t)
		fr.out["devices"] = []byte("List of devices attached\ngood\tdevice\nbad\toffline\nworse\tunauthorized\n")

		serials, err := m.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"good"}, serials)
	})

	t.Run("empty listing yields no serials", func(t *testing.T) {
		t.Parallel()
		m, fr := newTestManager(t)
		fr.out["devices"] = []byte("List of devices attached\n")

		serials, err := m.Refresh(ctx)
		require.NoError(t, err)
		assert.Empty(t, serials)
	})

	t.Run("adb failure propagates", func(t *testing.T) {
		t.Parallel()
		m, fr := newTestManager(t)
		fr.err = errors.New("no adb on path")
		_, err := m.Refresh(ctx)
		assert.Error(t, err)
	})
}

func TestManager_ControllerCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, fr := newTestManager(t)
	fr.out["devices"] = []byte("List of devices attached\nalpha\tdevice\n")

	first := m.Get(ctx, "alpha")
	require.NotNil(t, first)
	assert.Equal(t, "alpha", first.Serial())

	// Second lookup must hand back the same controller.
	assert.Same(t, first, m.Get(ctx, "alpha"))

	// Disconnect: the controller is dropped on the next refresh.
	fr.mu.Lock()
	fr.out["devices"] = []byte("List of devices attached\n")
	fr.mu.Unlock()
	_, err := m.Refresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, m.Get(ctx, "alpha"))
}

func TestManager_IsConnected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, fr := newTestManager(t)
	fr.out["devices"] = []byte("List of devices attached\nalpha\tdevice\n")

	assert.True(t, m.IsConnected(ctx, "alpha"))
	assert.False(t, m.IsConnected(ctx, "beta"))
}
