package mixer

// ResampleChannels remaps interleaved float32 PCM from inChannels to
// outChannels, holding frame count and sample rate fixed. Upmixing repeats
// the last available channel into new positions; downmixing averages the
// channels dropped into the nearest kept channel. This is a channel-count
// adapter only, not a sample-rate converter — the scene mixer rebuilds it
// whenever a bucket's native channel count no longer matches what the
// bucket's chain expects (spec.md §4.5 step 3).
func ResampleChannels(in []float32, inChannels, outChannels int) []float32 {
	if inChannels <= 0 || outChannels <= 0 || inChannels == outChannels {
		return in
	}
	frames := len(in) / inChannels
	out := make([]float32, frames*outChannels)

	if outChannels > inChannels {
		for f := 0; f < frames; f++ {
			for c := 0; c < outChannels; c++ {
				src := c
				if src >= inChannels {
					src = inChannels - 1
				}
				out[f*outChannels+c] = in[f*inChannels+src]
			}
		}
		return out
	}

	// Downmix: channel c of the output collects every input channel whose
	// index maps to it, averaged.
	counts := make([]int, outChannels)
	for c := 0; c < inChannels; c++ {
		counts[c*outChannels/inChannels]++
	}
	for f := 0; f < frames; f++ {
		for c := 0; c < inChannels; c++ {
			dst := c * outChannels / inChannels
			out[f*outChannels+dst] += in[f*inChannels+c]
		}
		for c := 0; c < outChannels; c++ {
			if counts[c] > 1 {
				out[f*outChannels+c] /= float32(counts[c])
			}
		}
	}
	return out
}
