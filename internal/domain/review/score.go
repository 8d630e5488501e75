package review

import "strings"

// MateCP is the saturating centipawn magnitude used for forced-mate scores.
const MateCP = 10000

// Score is a signed engine evaluation from the side-to-move's point of view.
// Mate != 0 marks a forced mate in |Mate| moves; a positive Mate favors the
// side to move. CP is ignored when Mate is set.
type Score struct {
	CP   int `json:"cp" bson:"cp"`
	Mate int `json:"mate,omitempty" bson:"mate,omitempty"`
}

func (s Score) IsMate() bool {
	return s.Mate != 0
}

// Centipawns flattens the score to a single comparable number. Mate scores
// saturate near MateCP, keeping closer mates larger in magnitude.
func (s Score) Centipawns() int {
	if s.Mate > 0 {
		return MateCP - s.Mate
	}
	if s.Mate < 0 {
		return -MateCP - s.Mate
	}
	return s.CP
}

// Negated flips the score to the opponent's point of view.
func (s Score) Negated() Score {
	return Score{CP: -s.CP, Mate: -s.Mate}
}

// WhitePOV converts a side-to-move score into white's point of view using
// the FEN's active-color field.
func WhitePOV(fen string, s Score) int {
	fields := strings.Fields(fen)
	if len(fields) > 1 && fields[1] == "b" {
		return -s.Centipawns()
	}
	return s.Centipawns()
}

// EvalResult is one engine evaluation of a position: the ranked candidate
// moves and the score of the top line, side-to-move point of view.
type EvalResult struct {
	BestMove   string          `json:"best_move"`
	Score      Score           `json:"score"`
	Depth      int             `json:"depth"`
	Candidates []CandidateMove `json:"candidates"`
}
