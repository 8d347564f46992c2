package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	pcm := make([]byte, 3200) // 100 ms at 16 kHz mono
	wav := EncodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Errorf("riff size = %d, want %d", got, 36+len(pcm))
	}
	if got := binary.LittleEndian.Uint16(wav[20:22]); got != 1 {
		t.Errorf("audio format = %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Errorf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}

	silence := make([]byte, 640)
	if got := RMS(silence); got != 0 {
		t.Errorf("RMS(silence) = %f, want 0", got)
	}

	// Constant amplitude has RMS equal to that amplitude.
	constant := make([]byte, 640)
	for i := 0; i < len(constant); i += 2 {
		binary.LittleEndian.PutUint16(constant[i:i+2], uint16(int16(1000)))
	}
	if got := RMS(constant); math.Abs(got-1000) > 0.001 {
		t.Errorf("RMS(constant 1000) = %f, want 1000", got)
	}
}

func TestPCMDuration(t *testing.T) {
	tests := []struct {
		name       string
		bytes      int
		sampleRate int
		channels   int
		want       int
	}{
		{"one second mono 16kHz", 32000, 16000, 1, 1000},
		{"half second mono 16kHz", 16000, 16000, 1, 500},
		{"one second stereo 48kHz", 192000, 48000, 2, 1000},
		{"zero sample rate", 32000, 0, 1, 0},
		{"empty buffer", 0, 16000, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PCMDuration(make([]byte, tt.bytes), tt.sampleRate, tt.channels)
			if got != tt.want {
				t.Errorf("PCMDuration() = %d ms, want %d ms", got, tt.want)
			}
		})
	}
}
