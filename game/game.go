// Package game holds the turn-state machine for a round of translation
// manzai, and the Director that asks the language model for every decision.
package game

import (
	"errors"
	"fmt"
	"strings"
)

// MaxTurns caps the number of hints in one game. The last turn always ends it.
const MaxTurns = 10

var (
	ErrInvalidPhase = errors.New("game: invalid phase")
	ErrBusy         = errors.New("game: turn in progress")
	ErrEmptyHint    = errors.New("game: empty hint")
	ErrTurnLimit    = errors.New("game: turn limit reached")
	ErrTooShort     = errors.New("game: not enough conversation to end")
)

type Phase string

const (
	PhaseIntro   Phase = "intro"
	PhaseTopic   Phase = "topic"
	PhasePlaying Phase = "playing"
	PhaseSummary Phase = "summary"
	PhaseResult  Phase = "result"
)

type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeFinished
)

type Topic struct {
	Topic    string `json:"topic"`
	Category string `json:"category"`
}

// Turn is what the Director needs to answer one hint.
type Turn struct {
	Number int
	Hint   string
	Topic  Topic
	// Prior is the conversation before this hint.
	Prior []Utterance
}

// State is a point-in-time copy of a game, safe to serialise.
type State struct {
	Phase           Phase       `json:"phase"`
	Difficulty      Difficulty  `json:"difficulty,omitempty"`
	DifficultyLabel string      `json:"difficulty_label,omitempty"`
	Topic           string      `json:"topic,omitempty"`
	Category        string      `json:"category,omitempty"`
	History         []Utterance `json:"history"`
	Turn            int         `json:"turn"`
	MaxTurns        int         `json:"max_turns"`
	Processing      bool        `json:"processing"`
	Analysis        *Analysis   `json:"analysis,omitempty"`
	Script          string      `json:"script,omitempty"`
}

// Game is not safe for concurrent use; callers serialise access.
type Game struct {
	phase      Phase
	difficulty Difficulty
	topic      Topic
	history    History
	turns      int
	processing bool
	finished   bool
	analysis   *Analysis
	script     string

	// round changes on every Reset so late model replies can be discarded.
	round int
}

func New() *Game {
	return &Game{phase: PhaseIntro}
}

func (g *Game) Phase() Phase { return g.phase }

func (g *Game) Difficulty() Difficulty { return g.difficulty }

func (g *Game) Topic() Topic { return g.topic }

func (g *Game) Turns() int { return g.turns }

// Round identifies the current game between resets.
func (g *Game) Round() int { return g.round }

func (g *Game) Processing() bool { return g.processing }

func (g *Game) Lines() []Utterance { return g.history.Lines() }

func (g *Game) HistoryLen() int { return g.history.Len() }

// Result returns the analysis and script once the game is concluded.
func (g *Game) Result() (Analysis, string) {
	if g.analysis == nil {
		return Analysis{}, g.script
	}
	return *g.analysis, g.script
}

func (g *Game) expect(p Phase) error {
	if g.phase != p {
		return fmt.Errorf("%w: %s, want %s", ErrInvalidPhase, g.phase, p)
	}
	return nil
}

// Choose records the difficulty and waits for a topic.
func (g *Game) Choose(d Difficulty) error {
	if err := g.expect(PhaseIntro); err != nil {
		return err
	}

	g.difficulty = d
	g.phase = PhaseTopic

	return nil
}

// Begin starts play on t with an empty history.
func (g *Game) Begin(t Topic) error {
	if err := g.expect(PhaseTopic); err != nil {
		return err
	}

	g.topic = t
	g.history.reset()
	g.turns = 0
	g.processing = false
	g.finished = false
	g.phase = PhasePlaying

	return nil
}

// Abandon returns to the intro when no topic could be produced.
func (g *Game) Abandon() error {
	if err := g.expect(PhaseTopic); err != nil {
		return err
	}

	g.difficulty = ""
	g.phase = PhaseIntro

	return nil
}

// Hint records the player's next hint and locks input until the turn is
// answered, retracted or failed.
func (g *Game) Hint(text string) (Turn, error) {
	if err := g.expect(PhasePlaying); err != nil {
		return Turn{}, err
	}
	if g.processing {
		return Turn{}, ErrBusy
	}

	hint := NormalizeHint(text)
	if hint == "" {
		return Turn{}, ErrEmptyHint
	}
	if g.turns >= MaxTurns {
		return Turn{}, ErrTurnLimit
	}

	turn := Turn{
		Number: g.turns + 1,
		Hint:   hint,
		Topic:  g.topic,
		Prior:  g.history.Lines(),
	}

	g.turns++
	g.history.Append(Player, hint)
	g.processing = true

	return turn, nil
}

func (g *Game) expectTurn() error {
	if err := g.expect(PhasePlaying); err != nil {
		return err
	}
	if !g.processing || g.finished {
		return fmt.Errorf("%w: no open turn", ErrInvalidPhase)
	}
	return nil
}

// Answer shows the bot's first reaction. The game is finished when the
// model judged the guess correct or the turn cap was reached.
func (g *Game) Answer(r Reply) (Outcome, error) {
	if err := g.expectTurn(); err != nil {
		return OutcomeContinue, err
	}

	g.history.Append(Bot, r.ResponseV1)

	if r.IsCorrect || g.turns >= MaxTurns {
		g.finished = true
		return OutcomeFinished, nil
	}

	return OutcomeContinue, nil
}

const (
	denialPrefix = "でも、オカンが言うには「"
	denialSuffix = "」ではないらしいねん"
)

// DenialLine is what the player says when the bot's guess is wrong.
func DenialLine(guess string) string {
	return denialPrefix + guess + denialSuffix
}

// IsDenial reports whether line was produced by DenialLine.
func IsDenial(line string) bool {
	return strings.HasPrefix(line, denialPrefix) && strings.HasSuffix(line, denialSuffix)
}

// Deny appends the player's denial of guess.
func (g *Game) Deny(guess string) error {
	if err := g.expectTurn(); err != nil {
		return err
	}

	g.history.Append(Player, DenialLine(guess))

	return nil
}

// Retract appends the bot's climb-down and unlocks input.
func (g *Game) Retract(response string) error {
	if err := g.expectTurn(); err != nil {
		return err
	}

	g.history.Append(Bot, response)
	g.processing = false

	return nil
}

// Fail unlocks input after a failed model call. The hint stays in history.
func (g *Game) Fail() error {
	if err := g.expectTurn(); err != nil {
		return err
	}

	g.processing = false

	return nil
}

// End moves to the summary. A turn in flight blocks it unless that turn
// already finished the game.
func (g *Game) End() error {
	if err := g.expect(PhasePlaying); err != nil {
		return err
	}
	if g.processing && !g.finished {
		return ErrBusy
	}
	if g.history.Len() < 2 {
		return ErrTooShort
	}

	g.processing = false
	g.phase = PhaseSummary

	return nil
}

// Conclude stores the post-game analysis and script.
func (g *Game) Conclude(a Analysis, script string) error {
	if err := g.expect(PhaseSummary); err != nil {
		return err
	}

	g.analysis = &a
	g.script = script
	g.phase = PhaseResult

	return nil
}

// Reset starts over from the intro, from any phase.
func (g *Game) Reset() {
	*g = Game{
		phase: PhaseIntro,
		round: g.round + 1,
	}
}

func (g *Game) Snapshot() State {
	s := State{
		Phase:      g.phase,
		Difficulty: g.difficulty,
		Topic:      g.topic.Topic,
		Category:   g.topic.Category,
		History:    g.history.Lines(),
		Turn:       g.turns,
		MaxTurns:   MaxTurns,
		Processing: g.processing,
		Script:     g.script,
	}
	if g.difficulty != "" {
		s.DifficultyLabel = g.difficulty.Label()
	}
	if g.analysis != nil {
		a := *g.analysis
		a.Entries = append([]AnalysisEntry(nil), a.Entries...)
		s.Analysis = &a
	}
	return s
}
