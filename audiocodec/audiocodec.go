// Package audiocodec converts linear PCM16LE mono audio between the two
// fixed sample rates this client ever deals with — 48 kHz (Source/Sink
// side) and 24 kHz (the control channel wire rate) — and base64-frames it
// for the JSON transport. Resampling is deliberately trivial: the wire
// format is fixed, so keeping the conversion deterministic makes behavior
// reproducible in tests and auditable for drift, rather than chasing
// audio quality with a general-purpose resampler.
package audiocodec

import (
	"encoding/base64"

	"go.palabra.dev/client/errs"
)

const bytesPerSample = 2 // PCM16LE

// DownsampleTo24kHz halves the sample rate of 48 kHz PCM16LE mono audio by
// dropping every second sample pair. buf's length must be a multiple of
// bytesPerSample; the output length is half of buf's, rounded down to an
// even number of bytes.
func DownsampleTo24kHz(buf []byte) ([]byte, error) {
	if len(buf)%bytesPerSample != 0 {
		return nil, errs.New(errs.MalformedFrame, "audiocodec.DownsampleTo24kHz", nil)
	}
	numSamples := len(buf) / bytesPerSample
	outSamples := numSamples / 2
	out := make([]byte, outSamples*bytesPerSample)
	for i := 0; i < outSamples; i++ {
		src := i * 2 * bytesPerSample
		dst := i * bytesPerSample
		out[dst] = buf[src]
		out[dst+1] = buf[src+1]
	}
	return out, nil
}

// UpsampleTo48kHz doubles the sample rate of 24 kHz PCM16LE mono audio by
// linearly interpolating between neighboring samples, repeating the last
// sample at the boundary. buf's length must be a multiple of
// bytesPerSample; the output length is exactly double buf's.
func UpsampleTo48kHz(buf []byte) ([]byte, error) {
	if len(buf)%bytesPerSample != 0 {
		return nil, errs.New(errs.MalformedFrame, "audiocodec.UpsampleTo48kHz", nil)
	}
	numSamples := len(buf) / bytesPerSample
	out := make([]byte, numSamples*2*bytesPerSample)
	for i := 0; i < numSamples; i++ {
		cur := readSample(buf, i)
		var next int16
		if i+1 < numSamples {
			next = readSample(buf, i+1)
		} else {
			next = cur // repeat last sample at the boundary
		}
		mid := int16((int32(cur) + int32(next)) / 2)
		writeSample(out, 2*i, cur)
		writeSample(out, 2*i+1, mid)
	}
	return out, nil
}

func readSample(buf []byte, i int) int16 {
	off := i * bytesPerSample
	return int16(uint16(buf[off]) | uint16(buf[off+1])<<8)
}

func writeSample(buf []byte, i int, v int16) {
	off := i * bytesPerSample
	buf[off] = byte(uint16(v))
	buf[off+1] = byte(uint16(v) >> 8)
}

// EncodeBase64 encodes buf using standard base64 (RFC 4648), no line
// wrapping.
func EncodeBase64(buf []byte) string {
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeBase64 decodes s using standard base64. Invalid input fails with
// errs.MalformedFrame.
func DecodeBase64(s string) ([]byte, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errs.New(errs.MalformedFrame, "audiocodec.DecodeBase64", err)
	}
	return buf, nil
}
