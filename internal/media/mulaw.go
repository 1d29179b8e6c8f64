package media

// G.711 mu-law encoding for the outbound PCMU track.

const (
	muLawBias = 0x84
	muLawClip = 32635
)

func muLawEncodeSample(s int16) byte {
	sign := byte(0)
	v := int32(s)
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > muLawClip {
		v = muLawClip
	}
	v += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); (v&mask) == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((v >> (exponent + 3)) & 0x0F)
	return ^(sign | (exponent << 4) | mantissa)
}

// EncodeMuLaw converts 16-bit PCM into 8-bit mu-law, one byte per sample.
func EncodeMuLaw(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = muLawEncodeSample(s)
	}
	return out
}
