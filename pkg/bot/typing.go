package bot

import "time"

// TypingDuration estimates how long a person would take to type length
// characters at a random speed in [minCPM, maxCPM] characters per minute,
// with up to 20% jitter either way.
func TypingDuration(length, minCPM, maxCPM int, rng Rand) time.Duration {
	if length <= 0 {
		return 0
	}
	cpm := intBetween(rng, int64(minCPM), int64(maxCPM))
	if cpm <= 0 {
		return 0
	}
	jitter := 0.8 + rng.Float64()*0.4
	seconds := float64(length) * 60 / float64(cpm) * jitter
	return time.Duration(seconds * float64(time.Second))
}

func (o *Orchestrator) typingDuration() time.Duration {
	length := intBetween(o.rng, int64(o.opts.TypingMinChars), int64(o.opts.TypingMaxChars))
	return TypingDuration(int(length), o.opts.TypingMinCPM, o.opts.TypingMaxCPM, o.rng)
}
