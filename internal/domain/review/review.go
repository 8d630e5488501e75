package review

import (
	"time"
)

// Move quality labels, ordered from best to worst.
const (
	LabelBest       = "best"
	LabelExcellent  = "excellent"
	LabelGood       = "good"
	LabelInaccuracy = "inaccuracy"
	LabelMistake    = "mistake"
	LabelBlunder    = "blunder"
)

// Game phases used for weakness bucketing.
const (
	PhaseOpening    = "opening"
	PhaseMiddlegame = "middlegame"
	PhaseEndgame    = "endgame"
)

// Verification outcomes of a generated position inventory.
const (
	VerificationVerified    = "verified"
	VerificationNeedsReview = "needs_review"
)

// Rating confidence buckets.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

type Game struct {
	ID         string     `json:"id" bson:"id"`
	MoveText   string     `json:"move_text" bson:"move_text"`
	Status     string     `json:"status" bson:"status"`
	Error      string     `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
}

// PlyAnalysis is the engine's verdict for one half-move. All scores are
// stored from the mover's point of view. Produced once, immutable after.
type PlyAnalysis struct {
	GameID     string          `json:"game_id" bson:"game_id"`
	Ply        int             `json:"ply" bson:"ply"`
	FEN        string          `json:"fen" bson:"fen"`
	Move       string          `json:"move" bson:"move"`
	MoveUCI    string          `json:"move_uci" bson:"move_uci"`
	BestMove   string          `json:"best_move" bson:"best_move"`
	EvalBefore Score           `json:"eval_before" bson:"eval_before"`
	EvalAfter  Score           `json:"eval_after" bson:"eval_after"`
	EvalBest   Score           `json:"eval_best" bson:"eval_best"`
	Depth      int             `json:"depth" bson:"depth"`
	Candidates []CandidateMove `json:"candidates" bson:"candidates"`
}

// PlayedBest reports whether the played move matched the engine's top choice.
func (p PlyAnalysis) PlayedBest() bool {
	return p.MoveUCI != "" && p.MoveUCI == p.BestMove
}

type CandidateMove struct {
	Move  string `json:"move" bson:"move"`
	Score Score  `json:"score" bson:"score"`
	PV    string `json:"pv,omitempty" bson:"pv,omitempty"`
}

type MoveReview struct {
	GameID              string  `json:"game_id" bson:"game_id"`
	Ply                 int     `json:"ply" bson:"ply"`
	Move                string  `json:"move" bson:"move"`
	BestMove            string  `json:"best_move" bson:"best_move"`
	Label               string  `json:"label" bson:"label"`
	CentipawnLoss       int     `json:"centipawn_loss" bson:"centipawn_loss"`
	Accuracy            float64 `json:"accuracy" bson:"accuracy"`
	Explanation         string  `json:"explanation,omitempty" bson:"explanation,omitempty"`
	ExplanationFallback bool    `json:"explanation_fallback,omitempty" bson:"explanation_fallback,omitempty"`
	Phase               string  `json:"phase,omitempty" bson:"phase,omitempty"`
}

// VerifiedPosition is a piece inventory cross-checked against the board.
// It lives for one explanation attempt and is never persisted.
type VerifiedPosition struct {
	White      map[string][]string `json:"white"`
	Black      map[string][]string `json:"black"`
	SideToMove string              `json:"side_to_move"`
	Status     string              `json:"status"`
	Confidence float64             `json:"confidence"`
}

type GameSummary struct {
	GameID           string    `json:"game_id" bson:"game_id"`
	Accuracy         float64   `json:"accuracy" bson:"accuracy"`
	AccuracyWhite    float64   `json:"accuracy_white" bson:"accuracy_white"`
	AccuracyBlack    float64   `json:"accuracy_black" bson:"accuracy_black"`
	Rating           int       `json:"rating" bson:"rating"`
	RatingConfidence string    `json:"rating_confidence" bson:"rating_confidence"`
	Weaknesses       []string  `json:"weaknesses" bson:"weaknesses"`
	SoftErrors       []string  `json:"soft_errors,omitempty" bson:"soft_errors,omitempty"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
}

type Progress struct {
	Step    string `json:"step"`
	Percent int    `json:"percent"`
}

type GameReviewResult struct {
	Game    Game         `json:"game"`
	Reviews []MoveReview `json:"reviews"`
	Summary *GameSummary `json:"summary,omitempty"`
}

type SubmitReviewRequest struct {
	MoveText string `json:"move_text"`
}

type SubmitReviewResponse struct {
	GameID string `json:"game_id"`
}

// LabelSeverity orders labels so that a larger value is a worse move.
func LabelSeverity(label string) int {
	switch label {
	case LabelBest:
		return 0
	case LabelExcellent:
		return 1
	case LabelGood:
		return 2
	case LabelInaccuracy:
		return 3
	case LabelMistake:
		return 4
	case LabelBlunder:
		return 5
	}
	return -1
}

// Flagged reports whether a label is bad enough to count as a weakness.
func Flagged(label string) bool {
	return LabelSeverity(label) >= LabelSeverity(LabelInaccuracy)
}
