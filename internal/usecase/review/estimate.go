package review

import (
	"time"

	domain "chess_review/internal/domain/review"
)

// Rating estimate bounds and weights.
const (
	ratingFloor        = 400
	ratingCeiling      = 2500
	ratingAccuracyGain = 16
	ratingBlunderCost  = 50

	confidenceMediumMoves = 10
	confidenceHighMoves   = 30
)

// MoveAccuracy maps centipawn loss to a 0-100 per-move accuracy.
// K is 1.0: one full pawn of loss erases the move's score.
func MoveAccuracy(lossCP int) float64 {
	acc := 100.0 - float64(lossCP)
	if acc < 0 {
		return 0
	}
	return acc
}

// Estimate aggregates per-move reviews into the game summary fragment:
// overall and per-side accuracy, a heuristic rating and its confidence.
// Weaknesses are filled in by the detector afterwards.
func Estimate(gameID string, reviews []domain.MoveReview) domain.GameSummary {
	summary := domain.GameSummary{
		GameID:           gameID,
		RatingConfidence: domain.ConfidenceLow,
		CreatedAt:        time.Now(),
	}
	if len(reviews) == 0 {
		summary.Rating = ratingFloor
		return summary
	}

	var total, white, black float64
	var whiteN, blackN, blunders int
	for _, r := range reviews {
		total += r.Accuracy
		// White moves on even plies, zero-based.
		if r.Ply%2 == 0 {
			white += r.Accuracy
			whiteN++
		} else {
			black += r.Accuracy
			blackN++
		}
		if r.Label == domain.LabelBlunder {
			blunders++
		}
	}

	summary.Accuracy = total / float64(len(reviews))
	if whiteN > 0 {
		summary.AccuracyWhite = white / float64(whiteN)
	}
	if blackN > 0 {
		summary.AccuracyBlack = black / float64(blackN)
	}

	rating := ratingFloor + int(ratingAccuracyGain*summary.Accuracy) - ratingBlunderCost*blunders
	if rating < ratingFloor {
		rating = ratingFloor
	}
	if rating > ratingCeiling {
		rating = ratingCeiling
	}
	summary.Rating = rating

	switch {
	case len(reviews) >= confidenceHighMoves:
		summary.RatingConfidence = domain.ConfidenceHigh
	case len(reviews) >= confidenceMediumMoves:
		summary.RatingConfidence = domain.ConfidenceMedium
	}

	return summary
}
