package review

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "chess_review/internal/domain/review"
)

// fakeGen scripts the generation surface for tests across this package.
type fakeGen struct {
	textFn func(prompt string) (string, error)
	jsonFn func(prompt string, input any) (json.RawMessage, error)

	textCalls []string
	jsonCalls []string
}

func (f *fakeGen) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.textCalls = append(f.textCalls, prompt)
	if f.textFn == nil {
		return "", nil
	}
	return f.textFn(prompt)
}

func (f *fakeGen) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	f.jsonCalls = append(f.jsonCalls, prompt)
	if f.jsonFn == nil {
		return nil, nil
	}
	return f.jsonFn(prompt, input)
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func positionFromFEN(t *testing.T, fen string) *chess.Position {
	t.Helper()
	opt, err := chess.FEN(fen)
	require.NoError(t, err)
	return chess.NewGame(opt).Position()
}

func inventoryJSON(t *testing.T, vp domain.VerifiedPosition) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(vp)
	require.NoError(t, err)
	return raw
}

func TestVerifyPositionExactMatch(t *testing.T) {
	pos := chess.NewGame().Position()
	truth := GroundTruth(pos)

	gen := &fakeGen{jsonFn: func(string, any) (json.RawMessage, error) {
		return inventoryJSON(t, truth), nil
	}}
	v := NewVerifier(gen, 2, 0.7, testLogger())

	got := v.VerifyPosition(context.Background(), pos)
	assert.Equal(t, domain.VerificationVerified, got.Status)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, truth.White, got.White)
	assert.Equal(t, truth.Black, got.Black)
	assert.Equal(t, "white", got.SideToMove)
	assert.Len(t, gen.jsonCalls, 1)
}

func TestVerifyPositionMinorDiscrepancyLowersConfidence(t *testing.T) {
	pos := chess.NewGame().Position()
	shifted := GroundTruth(pos)
	// Same knight count, wrong square: minor.
	shifted.White["N"] = []string{"b3", "g1"}

	gen := &fakeGen{jsonFn: func(string, any) (json.RawMessage, error) {
		return inventoryJSON(t, shifted), nil
	}}
	v := NewVerifier(gen, 2, 0.7, testLogger())

	got := v.VerifyPosition(context.Background(), pos)
	assert.Equal(t, domain.VerificationVerified, got.Status)
	assert.InDelta(t, 0.95, got.Confidence, 0.0001)
	// The returned inventory is the board's, not the model's.
	assert.Equal(t, []string{"b1", "g1"}, got.White["N"])
	assert.Len(t, gen.jsonCalls, 1)
}

func TestVerifyPositionConfidenceFloorForcesNeedsReview(t *testing.T) {
	pos := chess.NewGame().Position()
	shifted := GroundTruth(pos)
	// Counts match but every pawn square is off by a rank: eight minors
	// push confidence to 0.6, below the 0.7 floor.
	shifted.White["P"] = []string{"a3", "b3", "c3", "d3", "e3", "f3", "g3", "h3"}

	gen := &fakeGen{jsonFn: func(string, any) (json.RawMessage, error) {
		return inventoryJSON(t, shifted), nil
	}}
	v := NewVerifier(gen, 2, 0.7, testLogger())

	got := v.VerifyPosition(context.Background(), pos)
	assert.Equal(t, domain.VerificationNeedsReview, got.Status)
	assert.InDelta(t, 0.6, got.Confidence, 0.0001)
	// The inventory is still the board's ground truth.
	assert.Equal(t, []string{"a2", "b2", "c2", "d2", "e2", "f2", "g2", "h2"}, got.White["P"])
	// Minor discrepancies never trigger corrective retries.
	assert.Len(t, gen.jsonCalls, 1)
}

func TestVerifyPositionHallucinationRetriesThenFallsBack(t *testing.T) {
	pos := chess.NewGame().Position()
	wrong := GroundTruth(pos)
	// An extra queen is a count mismatch: major, retried with feedback.
	wrong.White["Q"] = []string{"d1", "d4"}

	gen := &fakeGen{jsonFn: func(string, any) (json.RawMessage, error) {
		return inventoryJSON(t, wrong), nil
	}}
	v := NewVerifier(gen, 2, 0.7, testLogger())

	got := v.VerifyPosition(context.Background(), pos)
	assert.Equal(t, domain.VerificationNeedsReview, got.Status)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, []string{"d1"}, got.White["Q"])
	// Initial attempt plus maxRetries corrective rounds.
	require.Len(t, gen.jsonCalls, 3)
	assert.Contains(t, gen.jsonCalls[1], "hallucinated")
}

func TestVerifyPositionRecoversAfterCorrection(t *testing.T) {
	pos := chess.NewGame().Position()
	truth := GroundTruth(pos)
	wrong := GroundTruth(pos)
	wrong.Black["P"] = wrong.Black["P"][:7]

	calls := 0
	gen := &fakeGen{jsonFn: func(string, any) (json.RawMessage, error) {
		calls++
		if calls == 1 {
			return inventoryJSON(t, wrong), nil
		}
		return inventoryJSON(t, truth), nil
	}}
	v := NewVerifier(gen, 2, 0.7, testLogger())

	got := v.VerifyPosition(context.Background(), pos)
	assert.Equal(t, domain.VerificationVerified, got.Status)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, 2, calls)
}

func TestVerifyPositionMalformedJSONRetries(t *testing.T) {
	pos := chess.NewGame().Position()
	truth := GroundTruth(pos)

	calls := 0
	gen := &fakeGen{jsonFn: func(string, any) (json.RawMessage, error) {
		calls++
		if calls == 1 {
			return json.RawMessage("the board has the usual pieces"), nil
		}
		return inventoryJSON(t, truth), nil
	}}
	v := NewVerifier(gen, 2, 0.7, testLogger())

	got := v.VerifyPosition(context.Background(), pos)
	assert.Equal(t, domain.VerificationVerified, got.Status)
	assert.Contains(t, gen.jsonCalls[1], "not valid JSON")
}

func TestVerifyPositionGenerationErrorFallsBackImmediately(t *testing.T) {
	pos := positionFromFEN(t, "4k3/8/8/4n3/8/8/8/4R2K w - - 0 1")

	gen := &fakeGen{jsonFn: func(string, any) (json.RawMessage, error) {
		return nil, assert.AnError
	}}
	v := NewVerifier(gen, 2, 0.7, testLogger())

	got := v.VerifyPosition(context.Background(), pos)
	assert.Equal(t, domain.VerificationNeedsReview, got.Status)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, []string{"e1"}, got.White["R"])
	assert.Equal(t, []string{"e5"}, got.Black["N"])
	assert.Len(t, gen.jsonCalls, 1)
}

func TestGroundTruthListsEveryPiece(t *testing.T) {
	truth := GroundTruth(chess.NewGame().Position())

	assert.Equal(t, []string{"e1"}, truth.White["K"])
	assert.Equal(t, []string{"a1", "h1"}, truth.White["R"])
	assert.Equal(t, []string{"a2", "b2", "c2", "d2", "e2", "f2", "g2", "h2"}, truth.White["P"])
	assert.Equal(t, []string{"e8"}, truth.Black["K"])
	assert.Len(t, truth.Black["P"], 8)
}
