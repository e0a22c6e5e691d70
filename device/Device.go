// Package device resolves the compute device that agents run on. The
// device is resolved once at startup and passed explicitly to every
// component which needs it.
package device

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnknownDevice is returned when resolving an unrecognised device
// preference
var ErrUnknownDevice = errors.New("unknown device")

// Device is a compute device
type Device string

const (
	CPU  Device = "cpu"
	CUDA Device = "cuda"

	// Auto prefers an accelerator and falls back to the CPU
	Auto Device = "auto"
)

// Probe reports whether an accelerator is usable
type Probe func() bool

// NvidiaProbe reports whether an NVIDIA device node is present
func NvidiaProbe() bool {
	_, err := os.Stat("/dev/nvidia0")
	return err == nil
}

// Resolve turns a device preference into a concrete device. An empty
// preference is treated as Auto. Requesting CUDA when the probe finds
// no accelerator is an error, while Auto silently falls back to CPU.
func Resolve(preference string, probe Probe) (Device, error) {
	pref := Device(strings.ToLower(strings.TrimSpace(preference)))
	if pref == "" {
		pref = Auto
	}

	switch pref {
	case CPU:
		return CPU, nil
	case CUDA:
		if probe != nil && probe() {
			return CUDA, nil
		}
		return "", fmt.Errorf("resolve: cuda requested but no accelerator " +
			"is available")
	case Auto:
		if probe != nil && probe() {
			return CUDA, nil
		}
		return CPU, nil
	}
	return "", fmt.Errorf("resolve: %w %q", ErrUnknownDevice, preference)
}

// Accelerated returns whether the device is an accelerator
func (d Device) Accelerated() bool {
	return d == CUDA
}

func (d Device) String() string {
	return string(d)
}
