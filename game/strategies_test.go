package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	all := Strategies()
	require.Len(t, all, 16)

	colors := map[Color]int{}
	for _, s := range all {
		colors[s.Color]++
		assert.NotEmpty(t, s.Description, s.ID)
		assert.NotEmpty(t, s.Example, s.ID)
		assert.NotEmpty(t, s.Icon, s.ID)
	}
	assert.Equal(t, 8, colors[Blue])
	assert.Equal(t, 8, colors[Red])

	assert.Equal(t, "amplification", all[0].ID)
	assert.Equal(t, "?→○", all[15].Icon)

	all[0].ID = "changed"
	assert.Equal(t, "amplification", Strategies()[0].ID)
}

func TestLookupStrategy(t *testing.T) {
	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{key: "abstraction", want: "abstraction", ok: true},
		{key: "抽象化", want: "abstraction", ok: true},
		{key: "Cultural Translation", want: "culturalTranslation", ok: true},
		{key: "culturaltranslation", want: "culturalTranslation", ok: true},
		{key: " ゼロユニット化 ", want: "deletion", ok: true},
		{key: "telepathy", ok: false},
		{key: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			s, ok := LookupStrategy(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, s.ID)
		})
	}
}

func TestLoadStrategiesRejectsBadCatalogs(t *testing.T) {
	_, err := loadStrategies([]byte("strategies: []"))
	assert.Error(t, err)

	_, err = loadStrategies([]byte(`
strategies:
  - {id: a, name: あ, name_en: A, color: blue}
  - {id: a, name: い, name_en: B, color: red}
`))
	assert.ErrorContains(t, err, "duplicate")

	_, err = loadStrategies([]byte(`
strategies:
  - {id: a, name: あ, name_en: A, color: green}
`))
	assert.ErrorContains(t, err, "color")

	_, err = loadStrategies([]byte("strategies: [\n"))
	assert.Error(t, err)
}

func TestAnalysisNormalize(t *testing.T) {
	a := Analysis{
		Entries: []AnalysisEntry{
			{Turn: 1, Strategy: "concretion", StrategyName: "whatever"},
			{Turn: 2, Strategy: "", StrategyName: "凝縮"},
			{Strategy: "mystery"},
		},
	}

	a.normalize([]string{"朝に食べる", "三角", "コンビニ"})

	assert.Equal(t, AnalysisEntry{Turn: 1, UserHint: "朝に食べる", Strategy: "concretion", StrategyName: "具体化", Color: Red}, a.Entries[0])
	assert.Equal(t, AnalysisEntry{Turn: 2, UserHint: "三角", Strategy: "condensation", StrategyName: "凝縮", Color: Red}, a.Entries[1])
	assert.Equal(t, AnalysisEntry{Turn: 3, UserHint: "コンビニ", Strategy: "mystery", Color: Blue}, a.Entries[2])
}
