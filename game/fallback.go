package game

import (
	"fmt"
	"strings"
)

var fallbackTopics = map[Difficulty]Topic{
	Easy:   {Topic: "おにぎり", Category: "食べ物"},
	Normal: {Topic: "動物園", Category: "場所"},
	Hard:   {Topic: "デジャブ", Category: "現象"},
}

func fallbackTopic(d Difficulty) Topic {
	if t, ok := fallbackTopics[d]; ok {
		return t
	}
	return fallbackTopics[Normal]
}

func fallbackReply() Reply {
	return Reply{
		Guess:      "それ",
		IsCorrect:  false,
		ResponseV1: "ほな、それやないかい！オカンの好きなもんいうたら、だいたいそれで決まりやねん！",
		ResponseV2: "ほな、それと違うかぁ。それやったらオカンも忘れへんもんね。もうちょっと詳しく教えてくれる？",
	}
}

const fallbackSummary = "今回は分析を取得できませんでした。ヒントの一覧を見返して、どんな言い換えをしたか振り返ってみましょう。"

func fallbackAnalysis(hints []string) Analysis {
	a := Analysis{
		Entries: make([]AnalysisEntry, 0, len(hints)),
		Summary: fallbackSummary,
	}
	for i, h := range hints {
		a.Entries = append(a.Entries, AnalysisEntry{
			Turn:     i + 1,
			UserHint: h,
			Color:    Blue,
		})
	}
	return a
}

// fallbackScript assembles a script directly from the conversation, in the
// same frame the model is asked to use.
func fallbackScript(topic string, h *History) string {
	var b strings.Builder

	line := func(r Role, text string) {
		fmt.Fprintf(&b, "%s「%s」\n", r.speaker(), text)
	}

	line(Player, scriptOpening)
	line(Player, "オカンが好きなもんがあるらしいんやけど、その名前を忘れたらしくてね")
	line(Bot, "ほな俺がね、オカンの好きなもん一緒に考えてあげるから、どんな特徴言うてたか教えてみてよ")
	for _, l := range h.lines {
		line(l.Role, l.Content)
	}
	line(Bot, punchline(topic))
	line(Player, scriptClosing)

	return strings.TrimSuffix(b.String(), "\n")
}
