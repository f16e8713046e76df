package whisper

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"
)

// trimText normalizes whitespace in engine output: whisper.cpp prefixes
// segments with a leading space and occasionally emits trailing newlines.
func trimText(s string) string {
	return strings.TrimSpace(s)
}

// readWAVMono decodes a RIFF/WAV file containing 16-bit signed little-endian
// PCM into normalized float32 mono samples. Stereo input is downmixed by
// averaging channels. Compressed or non-16-bit WAV data is rejected.
func readWAVMono(path string) ([]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("whisper: read wav %q: %w", path, err)
	}
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("whisper: %q is not a RIFF/WAVE file", path)
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bits       int
		pcm        []byte
	)

	// Walk the chunk list; only fmt and data matter.
	for pos := 12; pos+8 <= len(data); {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("whisper: %q has truncated fmt chunk", path)
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word-aligned.
		pos = body + size + size%2
	}

	if format != 1 || bits != 16 {
		return nil, 0, fmt.Errorf("whisper: %q: only 16-bit PCM WAV is supported (format=%d bits=%d)", path, format, bits)
	}
	if channels <= 0 || sampleRate <= 0 || pcm == nil {
		return nil, 0, fmt.Errorf("whisper: %q has no decodable PCM data", path)
	}

	frameBytes := channels * 2
	frames := len(pcm) / frameBytes
	samples := make([]float32, frames)
	for i := range frames {
		var sum int
		for c := range channels {
			off := i*frameBytes + c*2
			sum += int(int16(binary.LittleEndian.Uint16(pcm[off : off+2])))
		}
		samples[i] = float32(sum/channels) / 32768.0
	}
	return samples, sampleRate, nil
}
