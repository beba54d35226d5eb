package models

// MatchMethod tags how a duplicate candidate's score was produced.
type MatchMethod string

const (
	MethodLexical  MatchMethod = "lexical"
	MethodLLM      MatchMethod = "llm"
	MethodCombined MatchMethod = "combined"
)

// MatchCandidate is one ranked duplicate candidate for a source entity.
// Scores are always within [0,1].
type MatchCandidate struct {
	Entity Entity      `json:"entity"`
	Score  float64     `json:"score"`
	Method MatchMethod `json:"method"`
	Reason string      `json:"reason"`
}
