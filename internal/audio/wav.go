package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const wavHeaderSize = 44

// EncodeWAV wraps raw little-endian PCM in a canonical 44-byte RIFF header.
func EncodeWAV(pcm []byte, sampleRate, channels, bitDepth int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 || bitDepth <= 0 || bitDepth%8 != 0 {
		return nil, errors.New("invalid wav parameters")
	}

	header, err := wavHeader(len(pcm), sampleRate, channels, bitDepth)
	if err != nil {
		return nil, err
	}
	return append(header, pcm...), nil
}

// SilentWAV returns d of 16-bit mono silence at the given sample rate.
func SilentWAV(d time.Duration, sampleRate int) []byte {
	samples := int(d.Seconds() * float64(sampleRate))
	data, _ := EncodeWAV(make([]byte, samples*2), sampleRate, 1, 16)
	return data
}

// WAVDuration reads the playing time from a PCM WAV header. It returns false
// for anything that is not a plain RIFF/WAVE file.
func WAVDuration(data []byte) (time.Duration, bool) {
	if len(data) < wavHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, false
	}

	byteRate := binary.LittleEndian.Uint32(data[28:32])
	if byteRate == 0 {
		return 0, false
	}

	dataSize := uint32(len(data) - wavHeaderSize)
	if string(data[36:40]) == "data" {
		if declared := binary.LittleEndian.Uint32(data[40:44]); declared > 0 && declared < dataSize {
			dataSize = declared
		}
	}

	return time.Duration(float64(dataSize) / float64(byteRate) * float64(time.Second)), true
}

func wavHeader(dataSize, sampleRate, channels, bitDepth int) ([]byte, error) {
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8
	chunkSize := 36 + dataSize

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize))
	buf.WriteString("RIFF")
	if err := binary.Write(buf, binary.LittleEndian, uint32(chunkSize)); err != nil {
		return nil, err
	}
	buf.WriteString("WAVEfmt ")
	fields := []any{
		uint32(16),
		uint16(1),
		uint16(channels),
		uint32(sampleRate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitDepth),
	}
	for _, field := range fields {
		if err := binary.Write(buf, binary.LittleEndian, field); err != nil {
			return nil, err
		}
	}
	buf.WriteString("data")
	if err := binary.Write(buf, binary.LittleEndian, uint32(dataSize)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
