package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// WAVInfo is the subset of a RIFF/WAVE header needed to describe a recording.
type WAVInfo struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataBytes     int
}

// Duration returns the playback length implied by the data chunk size.
func (w WAVInfo) Duration() time.Duration {
	bytesPerSecond := w.SampleRate * w.Channels * w.BitsPerSample / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(float64(w.DataBytes) / float64(bytesPerSecond) * float64(time.Second))
}

// ParseWAV walks the RIFF chunks of data and returns the fmt and data chunk
// details. Chunks other than "fmt " and "data" are skipped.
func ParseWAV(data []byte) (WAVInfo, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, errors.New("missing RIFF/WAVE header")
	}

	var info WAVInfo
	var haveFmt, haveData bool

	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return WAVInfo{}, errors.New("truncated fmt chunk")
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			// Recorders that stream often leave the size unpatched; clamp to
			// what is actually present.
			if body+size > len(data) {
				size = len(data) - body
			}
			info.DataBytes = size
			haveData = true
		}

		if haveFmt && haveData {
			break
		}
		// Chunks are word aligned.
		offset = body + size + size%2
	}

	if !haveFmt {
		return WAVInfo{}, errors.New("no fmt chunk")
	}
	if !haveData {
		return WAVInfo{}, errors.New("no data chunk")
	}
	if info.SampleRate <= 0 || info.Channels <= 0 || info.BitsPerSample <= 0 {
		return WAVInfo{}, fmt.Errorf("invalid format: %d Hz, %d channels, %d bits",
			info.SampleRate, info.Channels, info.BitsPerSample)
	}
	return info, nil
}

// EncodeWAV builds a PCM WAV file around samples. Used by tests and by the
// stub service to fabricate processed output.
func EncodeWAV(samples []byte, sampleRate, channels, bitsPerSample int) []byte {
	out := make([]byte, 44+len(samples))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(samples)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*channels*bitsPerSample/8))
	binary.LittleEndian.PutUint16(out[32:34], uint16(channels*bitsPerSample/8))
	binary.LittleEndian.PutUint16(out[34:36], uint16(bitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(samples)))
	copy(out[44:], samples)
	return out
}
