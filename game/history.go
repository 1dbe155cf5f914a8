package game

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Role identifies who said a line. The JSON values match the browser client.
type Role string

const (
	Player Role = "user"
	Bot    Role = "ai"
)

// Stage names used in transcripts and scripts.
const (
	playerName = "駒場"
	botName    = "内海"
)

func (r Role) speaker() string {
	if r == Player {
		return playerName
	}
	return botName
}

type Utterance struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is the append-only conversation log. The zero value is empty and
// ready to use.
type History struct {
	lines []Utterance
}

// HistoryFrom copies lines into a new History. Any role other than Player
// is treated as the bot.
func HistoryFrom(lines []Utterance) *History {
	h := &History{lines: make([]Utterance, 0, len(lines))}
	for _, l := range lines {
		role := Bot
		if l.Role == Player {
			role = Player
		}
		h.lines = append(h.lines, Utterance{Role: role, Content: l.Content})
	}
	return h
}

// Append adds one line and returns the new length.
func (h *History) Append(role Role, content string) int {
	h.lines = append(h.lines, Utterance{Role: role, Content: content})
	return len(h.lines)
}

func (h *History) Len() int {
	return len(h.lines)
}

// Lines returns a copy of the log.
func (h *History) Lines() []Utterance {
	out := make([]Utterance, len(h.lines))
	copy(out, h.lines)
	return out
}

// Hints returns the player's hints in order, one per turn. Denial lines are
// spoken by the player but are not hints.
func (h *History) Hints() []string {
	var hints []string
	for _, l := range h.lines {
		if l.Role == Player && !IsDenial(l.Content) {
			hints = append(hints, l.Content)
		}
	}
	return hints
}

// Transcript renders the log as "駒場: ..." / "内海: ..." lines.
func (h *History) Transcript() string {
	var b strings.Builder
	for i, l := range h.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", l.Role.speaker(), l.Content)
	}
	return b.String()
}

func (h *History) reset() {
	h.lines = nil
}

// NormalizeHint folds full-width and compatibility characters and trims
// surrounding space.
func NormalizeHint(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}
