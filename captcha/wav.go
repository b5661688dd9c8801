package captcha

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// PCM holds mono audio samples normalized to [-1, 1].
type PCM struct {
	SampleRate int
	Samples    []float64
}

var errMalformedWAV = errors.New("captcha: malformed wav data")

// decodeWAV parses a 16-bit PCM RIFF stream into mono samples, averaging
// channels when the source is multi-channel. Only plain PCM is accepted,
// which is what every supported speech engine emits.
func decodeWAV(raw []byte) (PCM, error) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return PCM{}, errMalformedWAV
	}

	var (
		sampleRate int
		channels   int
		bits       int
		data       []byte
	)

	pos := 12
	for pos+8 <= len(raw) {
		chunkID := string(raw[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		pos += 8
		if pos+size > len(raw) {
			size = len(raw) - pos
		}
		switch chunkID {
		case "fmt ":
			if size < 16 {
				return PCM{}, errMalformedWAV
			}
			format := int(binary.LittleEndian.Uint16(raw[pos : pos+2]))
			if format != 1 {
				return PCM{}, fmt.Errorf("%w: unsupported audio format %d", errMalformedWAV, format)
			}
			channels = int(binary.LittleEndian.Uint16(raw[pos+2 : pos+4]))
			sampleRate = int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
			bits = int(binary.LittleEndian.Uint16(raw[pos+14 : pos+16]))
		case "data":
			data = raw[pos : pos+size]
		}
		// chunks are word aligned
		pos += size + size%2
	}

	if sampleRate == 0 || channels == 0 || data == nil {
		return PCM{}, errMalformedWAV
	}
	if bits != 16 {
		return PCM{}, fmt.Errorf("%w: unsupported bit depth %d", errMalformedWAV, bits)
	}

	frameSize := 2 * channels
	frames := len(data) / frameSize
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			off := i*frameSize + c*2
			v := int16(binary.LittleEndian.Uint16(data[off : off+2]))
			sum += float64(v) / 32768
		}
		samples[i] = sum / float64(channels)
	}
	return PCM{SampleRate: sampleRate, Samples: samples}, nil
}

// encodeWAV serializes mono samples as a 16-bit PCM RIFF stream.
func encodeWAV(pcm PCM) []byte {
	dataLen := len(pcm.Samples) * 2
	buf := make([]byte, 44+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(pcm.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(pcm.SampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range pcm.Samples {
		v := int16(math.Round(clampSample(s) * 32767))
		binary.LittleEndian.PutUint16(buf[44+i*2:46+i*2], uint16(v))
	}
	return buf
}

func clampSample(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
