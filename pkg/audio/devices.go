package audio

import (
	"fmt"
	"strings"
)

// Device describes one enumerable audio input device.
type Device struct {
	// Name is the OS-reported device name (e.g., "MacBook Pro Microphone",
	// "BlackHole 2ch").
	Name string

	// Inputs is the maximum input channel count. Devices with zero inputs
	// are output-only and never selectable.
	Inputs int

	// Default marks the OS default input device.
	Default bool
}

// NameMatcher is a predicate over device names. Selection heuristics take
// matchers as parameters so the pattern lists can be swapped per-OS without
// touching the recorder state machine.
type NameMatcher func(name string) bool

// defaultLoopbackPatterns are device-name substrings identifying virtual
// audio-routing devices across platforms.
var defaultLoopbackPatterns = []string{
	"blackhole",
	"vb-cable",
	"vb-audio",
	"soundflower",
	"loopback",
	"virtual",
	"monitor",
}

// defaultBuiltinPatterns are device-name substrings identifying built-in
// microphones, preferred over external or paired devices.
var defaultBuiltinPatterns = []string{
	"built-in",
	"macbook",
	"internal",
}

// MatchAny returns a NameMatcher that reports whether a device name contains
// any of the given substrings, case-insensitively.
func MatchAny(patterns ...string) NameMatcher {
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return func(name string) bool {
		n := strings.ToLower(name)
		for _, p := range lowered {
			if strings.Contains(n, p) {
				return true
			}
		}
		return false
	}
}

// DefaultLoopbackMatcher matches the known virtual-audio-cable device names
// (BlackHole, VB-Cable, Soundflower, …).
func DefaultLoopbackMatcher() NameMatcher {
	return MatchAny(defaultLoopbackPatterns...)
}

// DefaultBuiltinMatcher matches built-in microphone device names.
func DefaultBuiltinMatcher() NameMatcher {
	return MatchAny(defaultBuiltinPatterns...)
}

// SelectMicrophone picks the best microphone from devices: loopback-named
// devices are excluded, built-in devices are preferred over external ones,
// and among equals the OS default wins. Fails with [ErrDeviceNotFound] when
// no input device remains after filtering.
func SelectMicrophone(devices []Device, isLoopback NameMatcher, isBuiltin NameMatcher) (Device, error) {
	if isLoopback == nil {
		isLoopback = DefaultLoopbackMatcher()
	}
	if isBuiltin == nil {
		isBuiltin = DefaultBuiltinMatcher()
	}

	var best Device
	found := false
	for _, d := range devices {
		if d.Inputs < 1 || isLoopback(d.Name) {
			continue
		}
		if !found || preferMicrophone(d, best, isBuiltin) {
			best = d
			found = true
		}
	}
	if !found {
		return Device{}, fmt.Errorf("microphone: %w", ErrDeviceNotFound)
	}
	return best, nil
}

// preferMicrophone reports whether candidate should replace current.
func preferMicrophone(candidate, current Device, isBuiltin NameMatcher) bool {
	cb, xb := isBuiltin(candidate.Name), isBuiltin(current.Name)
	if cb != xb {
		return cb
	}
	if candidate.Default != current.Default {
		return candidate.Default
	}
	return false
}

// SelectLoopback picks the first input device whose name matches the
// loopback pattern set. When none exists the error wraps [ErrDeviceNotFound]
// and carries remediation text: system-audio capture depends on an OS-level
// routing tool (e.g., BlackHole on macOS) that the user must install and
// configure before starting a session.
func SelectLoopback(devices []Device, isLoopback NameMatcher) (Device, error) {
	if isLoopback == nil {
		isLoopback = DefaultLoopbackMatcher()
	}
	for _, d := range devices {
		if d.Inputs >= 1 && isLoopback(d.Name) {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf(
		"loopback: %w: no virtual audio device detected — install an audio-routing tool "+
			"(e.g., `brew install blackhole-2ch` on macOS) and route system output through it",
		ErrDeviceNotFound,
	)
}
