package audio

import (
	"errors"
	"testing"
)

func TestSelectMicrophone(t *testing.T) {
	tests := []struct {
		name    string
		devices []Device
		want    string
		wantErr error
	}{
		{
			name: "prefers built-in over virtual loopback",
			devices: []Device{
				{Name: "BlackHole 2ch", Inputs: 2},
				{Name: "MacBook Pro Microphone", Inputs: 1, Default: true},
			},
			want: "MacBook Pro Microphone",
		},
		{
			name: "built-in beats external default",
			devices: []Device{
				{Name: "USB Condenser Mic", Inputs: 1, Default: true},
				{Name: "Built-in Microphone", Inputs: 1},
			},
			want: "Built-in Microphone",
		},
		{
			name: "default wins among externals",
			devices: []Device{
				{Name: "USB Mic A", Inputs: 1},
				{Name: "USB Mic B", Inputs: 1, Default: true},
				{Name: "USB Mic C", Inputs: 1},
			},
			want: "USB Mic B",
		},
		{
			name: "output-only devices are skipped",
			devices: []Device{
				{Name: "External Headphones", Inputs: 0, Default: true},
				{Name: "USB Mic", Inputs: 1},
			},
			want: "USB Mic",
		},
		{
			name: "only loopback devices present",
			devices: []Device{
				{Name: "BlackHole 2ch", Inputs: 2},
				{Name: "VB-Cable", Inputs: 2},
			},
			wantErr: ErrDeviceNotFound,
		},
		{
			name:    "no devices at all",
			devices: nil,
			wantErr: ErrDeviceNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectMicrophone(tt.devices, nil, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SelectMicrophone() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectMicrophone() unexpected error: %v", err)
			}
			if got.Name != tt.want {
				t.Errorf("SelectMicrophone() = %q, want %q", got.Name, tt.want)
			}
		})
	}
}

func TestSelectLoopback(t *testing.T) {
	tests := []struct {
		name    string
		devices []Device
		want    string
		wantErr error
	}{
		{
			name: "finds BlackHole among regular devices",
			devices: []Device{
				{Name: "MacBook Pro Microphone", Inputs: 1, Default: true},
				{Name: "BlackHole 2ch", Inputs: 2},
			},
			want: "BlackHole 2ch",
		},
		{
			name: "matches case-insensitively",
			devices: []Device{
				{Name: "SOUNDFLOWER (2ch)", Inputs: 2},
			},
			want: "SOUNDFLOWER (2ch)",
		},
		{
			name: "ignores output-only virtual device",
			devices: []Device{
				{Name: "BlackHole 2ch", Inputs: 0},
			},
			wantErr: ErrDeviceNotFound,
		},
		{
			name: "no virtual device installed",
			devices: []Device{
				{Name: "MacBook Pro Microphone", Inputs: 1, Default: true},
			},
			wantErr: ErrDeviceNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectLoopback(tt.devices, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SelectLoopback() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectLoopback() unexpected error: %v", err)
			}
			if got.Name != tt.want {
				t.Errorf("SelectLoopback() = %q, want %q", got.Name, tt.want)
			}
		})
	}
}

func TestMatchAny(t *testing.T) {
	m := MatchAny("blackhole", "vb-cable")
	if !m("BlackHole 16ch") {
		t.Error("expected match for BlackHole 16ch")
	}
	if m("MacBook Pro Microphone") {
		t.Error("did not expect match for MacBook Pro Microphone")
	}
}

func TestDefaultCaptureConfig(t *testing.T) {
	mic := DefaultCaptureConfig(SourceMicrophone)
	if mic.SampleRate != 16000 || mic.Channels != 1 {
		t.Errorf("microphone config = %d Hz / %d ch, want 16000 Hz / 1 ch", mic.SampleRate, mic.Channels)
	}
	if !mic.EchoCancellation || !mic.NoiseSuppression {
		t.Error("microphone config should enable echo cancellation and noise suppression")
	}

	loop := DefaultCaptureConfig(SourceLoopback)
	if loop.EchoCancellation || loop.NoiseSuppression {
		t.Error("loopback config must not apply voice processing to system audio")
	}
}
