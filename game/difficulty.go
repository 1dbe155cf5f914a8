package game

import "strings"

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Normal Difficulty = "normal"
	Hard   Difficulty = "hard"
)

// ParseDifficulty maps a level name to a Difficulty. Unknown levels are Normal.
func ParseDifficulty(s string) Difficulty {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case Easy:
		return Easy
	case Hard:
		return Hard
	default:
		return Normal
	}
}

func (d Difficulty) Label() string {
	switch d {
	case Easy:
		return "初級"
	case Hard:
		return "上級"
	default:
		return "中級"
	}
}

// brief is the kind of word each level draws its topic from.
func (d Difficulty) brief() string {
	switch d {
	case Easy:
		return "誰もが共通のイメージを持つ具体的な物体（例：おにぎり、ハサミ、傘、電車など）"
	case Hard:
		return "視覚化しづらい感情や、説明に工夫が必要な複雑な事象（例：断捨離、絶望、デジャブ、孤独など）"
	default:
		return "複数の要素が組み合わさった日常的な概念や場所（例：友情、動物園、誕生日、通勤など）"
	}
}
