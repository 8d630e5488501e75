package review

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "chess_review/internal/domain/review"
)

func flaggedReviews() []domain.MoveReview {
	return []domain.MoveReview{
		{Ply: 4, Label: domain.LabelBest, Phase: domain.PhaseOpening},
		{Ply: 10, Label: domain.LabelInaccuracy, Phase: domain.PhaseOpening},
		{Ply: 24, Label: domain.LabelMistake, Phase: domain.PhaseMiddlegame},
		{Ply: 26, Label: domain.LabelBlunder, Phase: domain.PhaseMiddlegame},
		{Ply: 50, Label: domain.LabelBlunder, Phase: domain.PhaseEndgame},
	}
}

func TestDetectWeaknessesParsesStructuredResponse(t *testing.T) {
	gen := &fakeGen{jsonFn: func(string, any) (json.RawMessage, error) {
		return json.RawMessage(`{"weaknesses":["drops pieces under pressure","weak endgame technique","rushes in the middlegame"]}`), nil
	}}
	d := NewWeaknessDetector(gen, testLogger())

	got, err := d.DetectWeaknesses(context.Background(), flaggedReviews())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"drops pieces under pressure",
		"weak endgame technique",
		"rushes in the middlegame",
	}, got)
}

func TestDetectWeaknessesClampsToFive(t *testing.T) {
	gen := &fakeGen{jsonFn: func(string, any) (json.RawMessage, error) {
		return json.RawMessage(`{"weaknesses":["a","b","c","d","e","f","g"]}`), nil
	}}
	d := NewWeaknessDetector(gen, testLogger())

	got, err := d.DetectWeaknesses(context.Background(), flaggedReviews())
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestDetectWeaknessesSalvagesListLines(t *testing.T) {
	raw := "Here are the weaknesses:\n- drops pieces under pressure\n2) weak endgame technique\n* rushes in the middlegame\n"
	gen := &fakeGen{jsonFn: func(string, any) (json.RawMessage, error) {
		return json.RawMessage(raw), nil
	}}
	d := NewWeaknessDetector(gen, testLogger())

	got, err := d.DetectWeaknesses(context.Background(), flaggedReviews())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"drops pieces under pressure",
		"weak endgame technique",
		"rushes in the middlegame",
	}, got)
}

func TestDetectWeaknessesUnparseableResponse(t *testing.T) {
	gen := &fakeGen{jsonFn: func(string, any) (json.RawMessage, error) {
		return json.RawMessage("the player should study more"), nil
	}}
	d := NewWeaknessDetector(gen, testLogger())

	got, err := d.DetectWeaknesses(context.Background(), flaggedReviews())
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestDetectWeaknessesGenerationFailure(t *testing.T) {
	gen := &fakeGen{jsonFn: func(string, any) (json.RawMessage, error) {
		return nil, assert.AnError
	}}
	d := NewWeaknessDetector(gen, testLogger())

	got, err := d.DetectWeaknesses(context.Background(), flaggedReviews())
	assert.Error(t, err)
	assert.Empty(t, got)
}

func TestDetectWeaknessesNoFlaggedMovesSkipsGeneration(t *testing.T) {
	gen := &fakeGen{}
	d := NewWeaknessDetector(gen, testLogger())

	got, err := d.DetectWeaknesses(context.Background(), []domain.MoveReview{
		{Ply: 0, Label: domain.LabelBest},
		{Ply: 1, Label: domain.LabelGood},
	})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, gen.jsonCalls)
}

func TestBucketByPhaseOrdersAndCounts(t *testing.T) {
	buckets := bucketByPhase(flaggedReviews())
	require.Len(t, buckets, 3)

	assert.Equal(t, domain.PhaseOpening, buckets[0].Phase)
	assert.Equal(t, 1, buckets[0].Inaccuracies)
	assert.Equal(t, domain.PhaseMiddlegame, buckets[1].Phase)
	assert.Equal(t, 1, buckets[1].Mistakes)
	assert.Equal(t, 1, buckets[1].Blunders)
	assert.Equal(t, domain.PhaseEndgame, buckets[2].Phase)
	assert.Equal(t, 1, buckets[2].Blunders)
}
