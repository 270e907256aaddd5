package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/go-audio/wav"
)

// PCM is a decoded block of interleaved 32-bit float samples in [-1, 1].
type PCM struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of multi-channel frames in p.
func (p PCM) Frames() int {
	if p.Channels <= 0 {
		return len(p.Samples)
	}
	return len(p.Samples) / p.Channels
}

// DecodeWAV decodes a WAV blob into interleaved 32-bit float PCM samples.
func DecodeWAV(b []byte) (PCM, error) {
	return DecodeWAVReader(bytes.NewReader(b))
}

// DecodeWAVReader decodes a whole WAV stream from r.
func DecodeWAVReader(r io.ReadSeeker) (PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return PCM{}, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		if err == io.EOF {
			err = nil
		} else {
			return PCM{}, err
		}
	}
	if buf == nil {
		return PCM{}, errors.New("empty wav buffer")
	}
	// buf is *audio.IntBuffer; normalize to float32 [-1,1]
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	maxInt := 1 << (bitDepth - 1)
	if maxInt <= 0 {
		maxInt = 32768
	}
	scale := float32(maxInt)
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / scale
	}
	sr := int(dec.SampleRate)
	channels := int(dec.NumChans)
	if buf.Format != nil {
		if sr == 0 {
			sr = buf.Format.SampleRate
		}
		if channels == 0 {
			channels = buf.Format.NumChannels
		}
	}
	if sr == 0 {
		sr = WhisperSampleRate
	}
	if channels == 0 {
		channels = 1
	}
	return PCM{Samples: out, SampleRate: sr, Channels: channels}, nil
}

// DecodePCM16LE converts little-endian PCM16 bytes into float32 samples.
func DecodePCM16LE(b []byte, sampleRate, channels int) (PCM, error) {
	if sampleRate <= 0 {
		sampleRate = WhisperSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	if len(b)%2 != 0 {
		return PCM{}, errors.New("pcm16 length must be even")
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(b[2*i:]))
		out[i] = float32(v) / 32768.0
	}
	return PCM{Samples: out, SampleRate: sampleRate, Channels: channels}, nil
}

// DecodeFloat32LE converts little-endian IEEE-754 float32 bytes into samples.
func DecodeFloat32LE(b []byte, sampleRate, channels int) (PCM, error) {
	if sampleRate <= 0 {
		sampleRate = WhisperSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	if len(b)%4 != 0 {
		return PCM{}, errors.New("f32 length must be a multiple of 4")
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return PCM{Samples: out, SampleRate: sampleRate, Channels: channels}, nil
}
