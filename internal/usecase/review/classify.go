package review

import (
	domain "chess_review/internal/domain/review"
)

// Classification thresholds in centipawns of loss against the best line.
// Bounds are exclusive upper limits: a loss equal to a bound falls into
// the worse tier.
const (
	ThresholdExcellentCP  = 15
	ThresholdGoodCP       = 50
	ThresholdInaccuracyCP = 100
	ThresholdMistakeCP    = 200
)

// Classify converts the evaluation delta between the engine's best line and
// the played move into a quality label and a non-negative centipawn loss.
// Both scores are from the mover's point of view. playedIsBest forces the
// Best label so engine re-evaluation noise cannot demote the top move.
func Classify(played, best domain.Score, playedIsBest bool) (string, int) {
	if playedIsBest {
		return domain.LabelBest, 0
	}

	loss := best.Centipawns() - played.Centipawns()
	if loss < 0 {
		loss = 0
	}

	switch {
	case loss == 0:
		return domain.LabelBest, 0
	case loss < ThresholdExcellentCP:
		return domain.LabelExcellent, loss
	case loss < ThresholdGoodCP:
		return domain.LabelGood, loss
	case loss < ThresholdInaccuracyCP:
		return domain.LabelInaccuracy, loss
	case loss < ThresholdMistakeCP:
		return domain.LabelMistake, loss
	default:
		return domain.LabelBlunder, loss
	}
}

// endgameMaterialPoints is the non-pawn material level at or below which a
// position counts as an endgame (both sides combined).
const endgameMaterialPoints = 13

// PhaseOf tags a ply with its game phase. Ply is zero-based, so the first
// ten full moves are the opening.
func PhaseOf(ply int, nonPawnMaterial int) string {
	if ply < 20 {
		return domain.PhaseOpening
	}
	if nonPawnMaterial <= endgameMaterialPoints {
		return domain.PhaseEndgame
	}
	return domain.PhaseMiddlegame
}
