package schedule

import (
	"math/rand/v2"
	"time"
)

type Period int

const (
	Night Period = iota
	Morning
	Afternoon
	Evening
)

func (p Period) String() string {
	switch p {
	case Morning:
		return "morning"
	case Afternoon:
		return "afternoon"
	case Evening:
		return "evening"
	default:
		return "night"
	}
}

// PeriodOf maps an hour of day to its greeting period: morning 5-11,
// afternoon 12-17, evening 18-23, night 0-4.
func PeriodOf(hour int) Period {
	switch {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 18:
		return Afternoon
	case hour >= 18 && hour < 24:
		return Evening
	default:
		return Night
	}
}

var greetings = map[Period][]string{
	Morning: {
		"おはようございます！今日はどんな一日にしたいですか？",
		"Good morning everyone! How did you sleep?",
		"朝ごはんはもう食べましたか？",
		"Morning, zoo! What's the first thing on your mind today?",
	},
	Afternoon: {
		"こんにちは！午後はどう過ごしていますか？",
		"Afternoon all! How's the day treating you so far?",
		"お昼休みですね。最近気になっていることはありますか？",
		"Anyone taking a break? Tell me something fun from today.",
	},
	Evening: {
		"こんばんは！今日はどんな一日でしたか？",
		"Evening everyone! How was your day?",
		"一日お疲れ様でした。楽しいことはありましたか？",
		"Winding down? What are you thinking about tonight?",
	},
	Night: {
		"まだ起きていますか？眠れない夜ですね。",
		"Still up? What's keeping you awake?",
		"静かな夜ですね。何か話したいことはありますか？",
		"Late-night thoughts welcome. Anything on your mind?",
	},
}

// Greeting picks a conversation starter suited to the hour of at.
func Greeting(at time.Time, rng *rand.Rand) string {
	lines := greetings[PeriodOf(at.Hour())]
	if rng == nil {
		return lines[rand.IntN(len(lines))]
	}
	return lines[rng.IntN(len(lines))]
}

// Greetings returns the starters for one period.
func Greetings(p Period) []string {
	return append([]string(nil), greetings[p]...)
}
