// Package placeholder renders the silent clip served when no speech provider
// produced audio.
package placeholder

import (
	"bytes"
	"encoding/binary"
)

const (
	ContentType = "audio/wav"

	SampleRate    = 44100
	Channels      = 1
	BitsPerSample = 16
)

// SilentWAV returns one second of 16-bit mono PCM silence with a canonical
// 44-byte RIFF header.
func SilentWAV() []byte {
	return SilentWAVFor(SampleRate)
}

// SilentWAVFor returns numSamples frames of silence.
func SilentWAVFor(numSamples int) []byte {
	if numSamples < 0 {
		numSamples = 0
	}
	blockAlign := Channels * BitsPerSample / 8
	dataSize := uint32(numSamples * blockAlign)

	buf := bytes.NewBuffer(make([]byte, 0, 44+int(dataSize)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(Channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(SampleRate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(BitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}
