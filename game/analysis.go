package game

// Reply is the bot's answer to one hint.
type Reply struct {
	Guess      string `json:"guess"`
	IsCorrect  bool   `json:"isCorrect"`
	ResponseV1 string `json:"responseV1"`
	ResponseV2 string `json:"responseV2"`
}

type AnalysisEntry struct {
	Turn         int    `json:"turn"`
	UserHint     string `json:"userHint"`
	Strategy     string `json:"strategy"`
	StrategyName string `json:"strategyName"`
	Explanation  string `json:"explanation"`
	Color        Color  `json:"color,omitempty"`
}

// Analysis is the post-game breakdown of the player's hints.
type Analysis struct {
	Entries []AnalysisEntry `json:"analysis"`
	Summary string          `json:"summary"`
}

// normalize snaps every entry onto the catalog and fills gaps the model
// left: turn numbers, hint text and badge colour.
func (a *Analysis) normalize(hints []string) {
	for i := range a.Entries {
		e := &a.Entries[i]

		if e.Turn <= 0 {
			e.Turn = i + 1
		}
		if e.UserHint == "" && e.Turn <= len(hints) {
			e.UserHint = hints[e.Turn-1]
		}

		s, ok := LookupStrategy(e.Strategy)
		if !ok {
			s, ok = LookupStrategy(e.StrategyName)
		}
		if !ok {
			e.Color = Blue
			continue
		}

		e.Strategy = s.ID
		e.StrategyName = s.Name
		e.Color = s.Color
	}
}

