package review

import (
	"testing"

	"github.com/stretchr/testify/assert"

	domain "chess_review/internal/domain/review"
)

func TestMoveAccuracy(t *testing.T) {
	assert.Equal(t, 100.0, MoveAccuracy(0))
	assert.Equal(t, 70.0, MoveAccuracy(30))
	assert.Equal(t, 1.0, MoveAccuracy(99))
	assert.Equal(t, 0.0, MoveAccuracy(100))
	assert.Equal(t, 0.0, MoveAccuracy(550))
}

func reviewsWithAccuracy(n int, acc float64) []domain.MoveReview {
	out := make([]domain.MoveReview, n)
	for i := range out {
		out[i] = domain.MoveReview{Ply: i, Label: domain.LabelGood, Accuracy: acc}
	}
	return out
}

func TestEstimateEmptyGame(t *testing.T) {
	s := Estimate("g1", nil)
	assert.Equal(t, "g1", s.GameID)
	assert.Equal(t, ratingFloor, s.Rating)
	assert.Equal(t, domain.ConfidenceLow, s.RatingConfidence)
}

func TestEstimateSplitsSidesByPly(t *testing.T) {
	reviews := []domain.MoveReview{
		{Ply: 0, Accuracy: 100},
		{Ply: 1, Accuracy: 40},
		{Ply: 2, Accuracy: 80},
		{Ply: 3, Accuracy: 60},
	}
	s := Estimate("g1", reviews)
	assert.InDelta(t, 70.0, s.Accuracy, 0.001)
	assert.InDelta(t, 90.0, s.AccuracyWhite, 0.001)
	assert.InDelta(t, 50.0, s.AccuracyBlack, 0.001)
}

func TestEstimateBlundersLowerRating(t *testing.T) {
	clean := Estimate("g1", reviewsWithAccuracy(12, 80))

	withBlunder := reviewsWithAccuracy(12, 80)
	withBlunder[5].Label = domain.LabelBlunder
	dirty := Estimate("g1", withBlunder)

	assert.Equal(t, clean.Rating-ratingBlunderCost, dirty.Rating)
}

func TestEstimateRatingClamps(t *testing.T) {
	// Zero accuracy plus blunders everywhere cannot go below the floor.
	bad := reviewsWithAccuracy(12, 0)
	for i := range bad {
		bad[i].Label = domain.LabelBlunder
	}
	assert.Equal(t, ratingFloor, Estimate("g1", bad).Rating)

	// Perfect accuracy caps at the ceiling.
	s := Estimate("g1", reviewsWithAccuracy(40, 100))
	assert.LessOrEqual(t, s.Rating, ratingCeiling)
}

func TestEstimateConfidenceBuckets(t *testing.T) {
	assert.Equal(t, domain.ConfidenceLow, Estimate("g", reviewsWithAccuracy(9, 80)).RatingConfidence)
	assert.Equal(t, domain.ConfidenceMedium, Estimate("g", reviewsWithAccuracy(10, 80)).RatingConfidence)
	assert.Equal(t, domain.ConfidenceMedium, Estimate("g", reviewsWithAccuracy(29, 80)).RatingConfidence)
	assert.Equal(t, domain.ConfidenceHigh, Estimate("g", reviewsWithAccuracy(30, 80)).RatingConfidence)
}
