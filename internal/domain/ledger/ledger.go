// Package ledger keeps the bounded, most-recent-first history of scores for
// one session.
package ledger

import (
	"encoding/json"
	"strconv"
	"strings"
)

// MaxEntries bounds the number of scores a history keeps.
const MaxEntries = 5

// Bounds of a storable score.
const (
	minScore = 0
	maxScore = 100
)

// History is an ordered list of scores, most recent first.
type History []int

// Record returns a new history with s at the head. When the bound is
// exceeded the oldest entry is dropped. h is left untouched.
func Record(h History, s int) History {
	n := len(h) + 1
	if n > MaxEntries {
		n = MaxEntries
	}
	out := make(History, n)
	out[0] = s
	copy(out[1:], h)
	return out
}

// Latest returns the most recently recorded score.
func (h History) Latest() (int, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[0], true
}

// Render joins the scores with sep.
func Render(h History, sep string) string {
	parts := make([]string, len(h))
	for i, s := range h {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, sep)
}

// Encode serializes h for the session store as a JSON array.
func Encode(h History) ([]byte, error) {
	if h == nil {
		h = History{}
	}
	return json.Marshal([]int(h))
}

// Decode parses a stored history. Absent or corrupt data yields an empty
// history; a longer list keeps only its MaxEntries most recent scores.
func Decode(b []byte) History {
	if len(b) == 0 {
		return History{}
	}
	var raw []int
	if err := json.Unmarshal(b, &raw); err != nil || raw == nil {
		return History{}
	}
	for _, s := range raw {
		if s < minScore || s > maxScore {
			return History{}
		}
	}
	if len(raw) > MaxEntries {
		raw = raw[:MaxEntries]
	}
	return History(raw)
}
