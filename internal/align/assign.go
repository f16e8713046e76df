package align

// AssignSpeaker resolves the speaker for a transcript segment spanning
// [start, end] seconds. The segment midpoint is quantized and looked up in
// the timeline; when the midpoint falls in a diarization gap (common at
// speech onset and turn boundaries, since ASR and diarizer boundaries are
// computed independently), the search widens outward one instant at a time
// up to radius instants, checking the earlier instant before the later one
// at each distance. A non-positive radius falls back to
// [DefaultSearchRadius].
//
// The result is deterministic for a given timeline: either a speaker label
// from the timeline or [Unknown] when nothing resolves within the radius.
func (tl *Timeline) AssignSpeaker(start, end float64, radius int) string {
	if radius <= 0 {
		radius = DefaultSearchRadius
	}

	mid := tl.index((start + end) / 2)
	if spk, ok := tl.at(mid); ok {
		return spk
	}
	for d := 1; d <= radius; d++ {
		if spk, ok := tl.at(mid - d); ok {
			return spk
		}
		if spk, ok := tl.at(mid + d); ok {
			return spk
		}
	}
	return Unknown
}
