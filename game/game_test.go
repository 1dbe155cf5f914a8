package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func playing(t *testing.T) *Game {
	t.Helper()

	g := New()
	require.NoError(t, g.Choose(Easy))
	require.NoError(t, g.Begin(Topic{Topic: "おにぎり", Category: "食べ物"}))

	return g
}

func TestGamePhases(t *testing.T) {
	g := New()
	assert.Equal(t, PhaseIntro, g.Phase())

	assert.ErrorIs(t, g.Begin(Topic{Topic: "傘"}), ErrInvalidPhase)

	require.NoError(t, g.Choose(Hard))
	assert.Equal(t, PhaseTopic, g.Phase())
	assert.Equal(t, Hard, g.Difficulty())
	assert.ErrorIs(t, g.Choose(Easy), ErrInvalidPhase)

	require.NoError(t, g.Abandon())
	assert.Equal(t, PhaseIntro, g.Phase())
	assert.Equal(t, Difficulty(""), g.Difficulty())

	require.NoError(t, g.Choose(Normal))
	require.NoError(t, g.Begin(Topic{Topic: "動物園", Category: "場所"}))
	assert.Equal(t, PhasePlaying, g.Phase())
	assert.Equal(t, 0, g.Turns())
	assert.Equal(t, 0, g.HistoryLen())
}

func TestWrongGuessTurn(t *testing.T) {
	g := playing(t)

	turn, err := g.Hint("  三角形で海苔を巻いてる  ")
	require.NoError(t, err)
	assert.Equal(t, 1, turn.Number)
	assert.Equal(t, "三角形で海苔を巻いてる", turn.Hint)
	assert.Equal(t, "おにぎり", turn.Topic.Topic)
	assert.Empty(t, turn.Prior)
	assert.True(t, g.Processing())

	_, err = g.Hint("もう一つ")
	assert.ErrorIs(t, err, ErrBusy)

	out, err := g.Answer(Reply{Guess: "サンドイッチ", ResponseV1: "ほなサンドイッチやないかい！", ResponseV2: "ほなサンドイッチと違うかぁ"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, out)
	assert.True(t, g.Processing())

	require.NoError(t, g.Deny("サンドイッチ"))
	require.NoError(t, g.Retract("ほなサンドイッチと違うかぁ"))
	assert.False(t, g.Processing())

	assert.Equal(t, []Utterance{
		{Role: Player, Content: "三角形で海苔を巻いてる"},
		{Role: Bot, Content: "ほなサンドイッチやないかい！"},
		{Role: Player, Content: "でも、オカンが言うには「サンドイッチ」ではないらしいねん"},
		{Role: Bot, Content: "ほなサンドイッチと違うかぁ"},
	}, g.Lines())

	turn, err = g.Hint("コンビニで売ってる")
	require.NoError(t, err)
	assert.Equal(t, 2, turn.Number)
	assert.Len(t, turn.Prior, 4)
}

func TestCorrectGuessFinishes(t *testing.T) {
	g := playing(t)

	_, err := g.Hint("お米を握ったもの")
	require.NoError(t, err)

	out, err := g.Answer(Reply{Guess: "おにぎり", IsCorrect: true, ResponseV1: "ほなおにぎりやないかい！"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinished, out)

	// The finished turn stays locked; only End may follow.
	assert.ErrorIs(t, g.Deny("おにぎり"), ErrInvalidPhase)
	assert.ErrorIs(t, g.Retract("x"), ErrInvalidPhase)
	_, err = g.Hint("more")
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, g.End())
	assert.Equal(t, PhaseSummary, g.Phase())
	assert.False(t, g.Processing())

	require.NoError(t, g.Conclude(Analysis{Summary: "よくできました"}, "駒場「どうもー！」"))
	assert.Equal(t, PhaseResult, g.Phase())

	a, script := g.Result()
	assert.Equal(t, "よくできました", a.Summary)
	assert.Equal(t, "駒場「どうもー！」", script)
}

func TestTurnCap(t *testing.T) {
	g := playing(t)

	for i := 1; i < MaxTurns; i++ {
		turn, err := g.Hint("ヒント")
		require.NoError(t, err)
		assert.Equal(t, i, turn.Number)

		out, err := g.Answer(Reply{Guess: "x", ResponseV1: "v1", ResponseV2: "v2"})
		require.NoError(t, err)
		require.Equal(t, OutcomeContinue, out)
		require.NoError(t, g.Deny("x"))
		require.NoError(t, g.Retract("v2"))
	}

	turn, err := g.Hint("最後のヒント")
	require.NoError(t, err)
	assert.Equal(t, MaxTurns, turn.Number)

	out, err := g.Answer(Reply{Guess: "x", ResponseV1: "v1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinished, out, "the last turn always finishes the game")
	assert.Equal(t, MaxTurns, g.Turns())
}

func TestTurnLimitAfterFailure(t *testing.T) {
	g := playing(t)

	for i := 0; i < MaxTurns; i++ {
		_, err := g.Hint("ヒント")
		require.NoError(t, err)
		require.NoError(t, g.Fail())
	}

	_, err := g.Hint("もう一回")
	assert.ErrorIs(t, err, ErrTurnLimit)
	assert.Equal(t, MaxTurns, g.Turns())
}

func TestHintValidation(t *testing.T) {
	g := playing(t)

	_, err := g.Hint("   ")
	assert.ErrorIs(t, err, ErrEmptyHint)
	assert.Equal(t, 0, g.Turns())

	turn, err := g.Hint("ＡＢＣの形")
	require.NoError(t, err)
	assert.Equal(t, "ABCの形", turn.Hint)

	assert.ErrorIs(t, New().Fail(), ErrInvalidPhase)
}

func TestEndRequiresConversation(t *testing.T) {
	g := playing(t)
	assert.ErrorIs(t, g.End(), ErrTooShort)

	_, err := g.Hint("丸い")
	require.NoError(t, err)
	assert.ErrorIs(t, g.End(), ErrBusy)

	require.NoError(t, g.Fail())
	assert.ErrorIs(t, g.End(), ErrTooShort)

	_, err = g.Hint("白い")
	require.NoError(t, err)
	_, err = g.Answer(Reply{Guess: "雪", ResponseV1: "ほな雪やないかい！", ResponseV2: "違うかぁ"})
	require.NoError(t, err)
	require.NoError(t, g.Deny("雪"))
	require.NoError(t, g.Retract("違うかぁ"))

	require.NoError(t, g.End())
	assert.ErrorIs(t, g.End(), ErrInvalidPhase)
}

func TestHistoryGrowsOneLineAtATime(t *testing.T) {
	g := playing(t)

	lengths := []int{g.HistoryLen()}
	record := func() { lengths = append(lengths, g.HistoryLen()) }

	_, err := g.Hint("ヒント1")
	require.NoError(t, err)
	record()
	_, err = g.Answer(Reply{Guess: "a", ResponseV1: "v1", ResponseV2: "v2"})
	require.NoError(t, err)
	record()
	require.NoError(t, g.Deny("a"))
	record()
	require.NoError(t, g.Retract("v2"))
	record()
	_, err = g.Hint("ヒント2")
	require.NoError(t, err)
	record()
	require.NoError(t, g.Fail())
	record()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 5}, lengths)
}

func TestResetStartsNewRound(t *testing.T) {
	g := playing(t)
	_, err := g.Hint("ヒント")
	require.NoError(t, err)

	round := g.Round()
	g.Reset()

	assert.Equal(t, round+1, g.Round())
	assert.Equal(t, PhaseIntro, g.Phase())
	assert.Equal(t, 0, g.Turns())
	assert.Equal(t, 0, g.HistoryLen())
	assert.False(t, g.Processing())
	assert.Equal(t, Topic{}, g.Topic())

	_, err = g.Answer(Reply{ResponseV1: "late"})
	assert.ErrorIs(t, err, ErrInvalidPhase)
}

func TestSnapshotIsACopy(t *testing.T) {
	g := playing(t)
	_, err := g.Hint("ヒント")
	require.NoError(t, err)

	s := g.Snapshot()
	assert.Equal(t, PhasePlaying, s.Phase)
	assert.Equal(t, "初級", s.DifficultyLabel)
	assert.Equal(t, "おにぎり", s.Topic)
	assert.Equal(t, "食べ物", s.Category)
	assert.Equal(t, 1, s.Turn)
	assert.Equal(t, MaxTurns, s.MaxTurns)
	assert.True(t, s.Processing)
	assert.Nil(t, s.Analysis)

	s.History[0].Content = "changed"
	assert.Equal(t, "ヒント", g.Lines()[0].Content)
}

func TestParseDifficulty(t *testing.T) {
	assert.Equal(t, Easy, ParseDifficulty("easy"))
	assert.Equal(t, Hard, ParseDifficulty(" HARD "))
	assert.Equal(t, Normal, ParseDifficulty("normal"))
	assert.Equal(t, Normal, ParseDifficulty("impossible"))
	assert.Equal(t, "中級", ParseDifficulty("").Label())
}
