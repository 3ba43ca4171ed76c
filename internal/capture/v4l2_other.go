//go:build !linux

package capture

import "github.com/pkg/errors"

// Open is unavailable off Linux: the V4L2 backend is the only device
// adapter. Callers get the same startup-fatal error tier as a missing device.
func Open(index int, cfg Config) (Device, error) {
	return nil, errors.Wrapf(ErrUnsupportedPlatform, "cannot open device %d", index)
}

// ListDevices reports no devices on unsupported platforms.
func ListDevices() []Info {
	return nil
}
