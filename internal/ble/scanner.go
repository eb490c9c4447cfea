package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultScanTimeout bounds a discovery pass when the caller gives none.
const DefaultScanTimeout = 5 * time.Second

// Scanner lists advertising peripherals, de-duplicated by address in the
// order they were first seen.
type Scanner struct {
	adapter Adapter
}

// NewScanner returns a Scanner using adapter.
func NewScanner(adapter Adapter) *Scanner {
	return &Scanner{adapter: adapter}
}

// Scan discovers peripherals for up to timeout. Later advertisements for a
// known address refresh its RSSI and fill in a missing name.
func (s *Scanner) Scan(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	seen := orderedmap.New[string, Device]()

	slog.Info("[BLE] scanning", "timeout", timeout)
	err := s.adapter.Scan(ctx, func(d Device) {
		key := strings.ToLower(d.Address)
		if key == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if prev, ok := seen.Get(key); ok {
			if d.Name == "" {
				d.Name = prev.Name
			}
		}
		seen.Set(key, d)
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	devices := make([]Device, 0, seen.Len())
	for pair := seen.Oldest(); pair != nil; pair = pair.Next() {
		d := pair.Value
		if d.Name == "" {
			d.Name = UnknownName
		}
		devices = append(devices, d)
	}
	slog.Info("[BLE] scan complete", "devices", len(devices))
	return devices, nil
}
