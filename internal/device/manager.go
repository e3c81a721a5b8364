// File: internal/device/manager.go
package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager tracks connected adb devices and caches one controller per serial.
type Manager struct {
	adbPath string
	log     *zap.Logger
	run     runner

	mu      sync.Mutex
	devices map[string]*ADB
}

// NewManager creates a device manager using the given adb binary.
func NewManager(adbPath string, logger *zap.Logger) *Manager {
	if adbPath == "" {
		adbPath = "adb"
	}
	return &Manager{
		adbPath: adbPath,
		log:     logger.Named("devices"),
		run:     execRunner,
		devices: make(map[string]*ADB),
	}
}

// Refresh lists connected device serials and reconciles the controller cache,
// dropping controllers for devices that went away.
func (m *Manager) Refresh(ctx context.Context) ([]string, error) {
	out, err := m.run(ctx, m.adbPath, "devices")
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	var serials []string
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for _, line := range lines[1:] { // first line is the banner
		serial, state, ok := strings.Cut(line, "\t")
		if !ok || strings.TrimSpace(state) != "device" {
			continue
		}
		serials = append(serials, serial)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool, len(serials))
	for _, s := range serials {
		seen[s] = true
		if _, ok := m.devices[s]; !ok {
			m.devices[s] = NewADB(m.adbPath, s, m.log)
		}
	}
	for s := range m.devices {
		if !seen[s] {
			m.log.Info("Device disconnected", zap.String("serial", s))
			delete(m.devices, s)
		}
	}
	return serials, nil
}

// Get returns the controller for the given serial, refreshing the device list
// if the serial is not yet known. Nil when the device is not connected.
func (m *Manager) Get(ctx context.Context, serial string) *ADB {
	m.mu.Lock()
	if dev, ok := m.devices[serial]; ok {
		m.mu.Unlock()
		return dev
	}
	m.mu.Unlock()

	if _, err := m.Refresh(ctx); err != nil {
		m.log.Warn("Device refresh failed", zap.Error(err))
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices[serial]
}

// IsConnected reports whether the serial shows up in a fresh device listing.
func (m *Manager) IsConnected(ctx context.Context, serial string) bool {
	serials, err := m.Refresh(ctx)
	if err != nil {
		return false
	}
	for _, s := range serials {
		if s == serial {
			return true
		}
	}
	return false
}

// RestartServer bounces the adb server and refreshes the device list.
func (m *Manager) RestartServer(ctx context.Context) error {
	if _, err := m.run(ctx, m.adbPath, "kill-server"); err != nil {
		m.log.Warn("kill-server failed", zap.Error(err))
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
	}
	if _, err := m.run(ctx, m.adbPath, "start-server"); err != nil {
		return fmt.Errorf("starting adb server: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
	}
	_, err := m.Refresh(ctx)
	return err
}
