package game

import (
	"fmt"
	"strings"
)

// nudgeTurn is the turn from which the bot is told to start landing the answer.
const nudgeTurn = 5

func topicPrompt(d Difficulty) string {
	return fmt.Sprintf(`あなたはミルクボーイ風の漫才ゲームのお題を生成するAIです。

難易度: %s
条件: %s

以下の条件でお題となる言葉を1つ生成し、さらにその言葉を大きく分類する「カテゴリ名」も生成してください。

1. お題(topic): ユーザーが説明しがいのある具体的な言葉
2. カテゴリ(category): その言葉が含まれる大きな分類（例：お題が「コーンフレーク」なら「朝ごはん」、お題が「スマホ」なら「機械」など）

回答は必ず以下のJSON形式のみで出力してください。Markdownコードブロックは不要です。
{"topic": "おにぎり", "category": "食べ物"}
`, d.Label(), d.brief())
}

func respondPrompt(topic string, prior *History, hint string, turn int) string {
	var b strings.Builder

	b.WriteString("あなたはミルクボーイの内海さん（ツッコミ担当）です。\n")
	b.WriteString("相方の駒場さん（ユーザー）が「オカンが好きなもの」を説明していますが、オカンはその言葉を忘れてしまいました。\n\n")
	fmt.Fprintf(&b, "【正解のお題】: %s（これはユーザーには教えないでください）\n", topic)
	fmt.Fprintf(&b, "【現在のターン数】: %d / %d\n\n", turn, MaxTurns)

	b.WriteString("【これまでの会話】:\n")
	if prior.Len() == 0 {
		b.WriteString("（まだありません）\n")
	} else {
		b.WriteString(prior.Transcript())
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\n【駒場の新しいヒント】: %s\n\n", hint)

	b.WriteString(`【あなたの役割】
ヒントから言葉を1つ推測し、ミルクボーイの内海さんとして2種類の返答を作ってください。

1. responseV1: 推測した言葉を「ほな〇〇やないかい！」と肯定し、庶民的な偏見や誇張した特徴を述べる
   - 例：「パッケージの五角形がむちゃくちゃデカイやん」「法律スレスレぐらい入っとんねん」
2. responseV2: 駒場に「〇〇ではないらしい」と否定された後の返答。「ほな〇〇と違うかぁ」と撤回し、否定の理由を庶民的な偏見で述べて、次のヒントを促す
   - 例：「人生の最後がそれでええ訳ないもんね」「生産者さんの顔が浮かばへんのよ」
3. isCorrect: 推測した言葉が正解のお題と同じか、ほぼ同じものなら true、それ以外は false
`)
	if turn >= nudgeTurn {
		b.WriteString("4. そろそろ正解に導いてもいい頃です。ヒントが正解に近ければ正解のお題を推測してください。\n")
	}

	b.WriteString(`
【重要】
- isCorrect が false のときは正解の言葉を絶対に言わないでください
- 関西弁で話してください
- 庶民的で共感できる偏見を交えてください
- 「〇〇」の部分には、推測した言葉を入れてください

回答は必ず以下のJSON形式のみで出力してください。Markdownコードブロックは不要です。
{"guess": "推測した言葉", "isCorrect": false, "responseV1": "ほな〇〇やないかい！…", "responseV2": "ほな〇〇と違うかぁ…"}
`)

	return b.String()
}

func analyzePrompt(topic string, hints []string) string {
	var b strings.Builder

	b.WriteString("あなたは翻訳学の専門家です。以下の会話を分析し、ユーザーが使用した翻訳ストラテジーを特定してください。\n\n")
	fmt.Fprintf(&b, "【お題】: %s\n\n", topic)

	b.WriteString("【ユーザーのヒント一覧】:\n")
	for i, h := range hints {
		fmt.Fprintf(&b, "ターン%d: %s\n", i+1, h)
	}

	fmt.Fprintf(&b, "\n【%dの翻訳ストラテジー】:\n", len(catalog))
	for _, s := range catalog {
		fmt.Fprintf(&b, "- %s（%s, id: %s）: %s\n", s.Name, s.NameEn, s.ID, s.Description)
	}

	b.WriteString(`
【分析タスク】
各ターンで、ユーザーがどの翻訳ストラテジーを使用したかを分析してください。

以下のJSON形式で出力してください：
{
  "analysis": [
    {
      "turn": 1,
      "userHint": "ユーザーのヒント",
      "strategy": "使用されたストラテジーのid",
      "strategyName": "ストラテジーの日本語名",
      "explanation": "なぜそのストラテジーと判断したかの説明（1-2文）"
    }
  ],
  "summary": "全体的な翻訳傾向のまとめ（2-3文）"
}

JSONのみを出力してください。`)

	return b.String()
}

func scriptPrompt(topic string, h *History) string {
	var b strings.Builder

	b.WriteString("あなたはミルクボーイの漫才台本作家です。以下の会話履歴を元に、完成版のミルクボーイ風漫才台本を作成してください。\n\n")
	fmt.Fprintf(&b, "【お題】: %s\n\n", topic)
	b.WriteString("【会話履歴】:\n")
	b.WriteString(h.Transcript())

	fmt.Fprintf(&b, `

【台本作成のルール】
1. 冒頭に「%s」を入れる
2. 駒場が「オカンが好きな〇〇があるらしいんやけど、その名前を忘れたらしくてね」で始める
3. 会話履歴を元に、より漫才らしく整える
4. 最後に「%s」でオチをつける
5. 締めに「%s」を入れる

【出力形式】
駒場「セリフ」
内海「セリフ」
の形式で出力してください。`, scriptOpening, punchline(topic), scriptClosing)

	return b.String()
}

const (
	scriptOpening = "どうもー！ミルクボーイです！"
	scriptClosing = "ありがとうございましたー！"
)

func punchline(topic string) string {
	return topic + "やないかい！"
}
