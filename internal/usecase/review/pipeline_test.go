package review

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chess_review/internal/bootstrap"
	domain "chess_review/internal/domain/review"
	"chess_review/internal/errors"
	"chess_review/internal/statuses"
)

// fakeEngine hands out scripted evaluations in call order.
type fakeEngine struct {
	t       *testing.T
	results []domain.EvalResult
	errAt   int // call index that fails, -1 for never
	calls   int
	fens    []string
}

func newFakeEngine(results ...domain.EvalResult) *fakeEngine {
	return &fakeEngine{results: results, errAt: -1}
}

func (f *fakeEngine) EvaluateAdaptive(ctx context.Context, fen string, prevWhitePOV *int) (domain.EvalResult, error) {
	idx := f.calls
	f.calls++
	f.fens = append(f.fens, fen)
	if idx == f.errAt {
		return domain.EvalResult{}, errors.ErrEngineTimeout
	}
	require.Less(f.t, idx, len(f.results), "unexpected engine call %d", idx)
	return f.results[idx], nil
}

// fakeReviewStore keeps everything in memory; explanation workers write to
// it concurrently.
type fakeReviewStore struct {
	mu          sync.Mutex
	statusLog   []string
	plyAnalyses map[int]domain.PlyAnalysis
	cached      map[int]*domain.PlyAnalysis
	moveReviews map[int]domain.MoveReview
	summaries   []domain.GameSummary
	progressLog []domain.Progress
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{
		plyAnalyses: map[int]domain.PlyAnalysis{},
		cached:      map[int]*domain.PlyAnalysis{},
		moveReviews: map[int]domain.MoveReview{},
	}
}

func (f *fakeReviewStore) UpdateGameStatus(ctx context.Context, gameID, status, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusLog = append(f.statusLog, status)
	return nil
}

func (f *fakeReviewStore) SavePlyAnalysis(ctx context.Context, pa domain.PlyAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plyAnalyses[pa.Ply] = pa
	return nil
}

func (f *fakeReviewStore) GetCachedPlyAnalysis(ctx context.Context, gameID string, ply int) (*domain.PlyAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cached[ply], nil
}

func (f *fakeReviewStore) SaveMoveReview(ctx context.Context, mr domain.MoveReview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moveReviews[mr.Ply] = mr
	return nil
}

func (f *fakeReviewStore) SaveGameSummary(ctx context.Context, s domain.GameSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, s)
	return nil
}

func (f *fakeReviewStore) SetProgress(ctx context.Context, gameID, step string, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressLog = append(f.progressLog, domain.Progress{Step: step, Percent: percent})
	return nil
}

func newTestPipeline(store *fakeReviewStore, engine *fakeEngine, gen *fakeGen) *Pipeline {
	cfg := bootstrap.Config{ExplainConcurrency: 2}
	log := testLogger()
	return NewPipeline(cfg, log, store, engine,
		NewVerifier(gen, 1, 0.7, log),
		NewThemeAnalyzer(16, time.Hour, nil, log),
		NewExplainer(gen, false, log),
		NewWeaknessDetector(gen, log),
	)
}

func cpEval(best string, cp int) domain.EvalResult {
	return domain.EvalResult{
		BestMove:   best,
		Score:      domain.Score{CP: cp},
		Depth:      12,
		Candidates: []domain.CandidateMove{{Move: best, Score: domain.Score{CP: cp}}},
	}
}

// reviewGen answers all three generation surfaces: inventory extraction,
// explanation text and weakness summarization.
func reviewGen(explanation string, textErr error) *fakeGen {
	return &fakeGen{
		textFn: func(string) (string, error) {
			return explanation, textErr
		},
		jsonFn: func(prompt string, input any) (json.RawMessage, error) {
			if strings.Contains(prompt, "weaknesses") {
				return json.RawMessage(`{"weaknesses":["hangs pieces","misses knight forks","weak endgame technique"]}`), nil
			}
			// Inventory extraction is unreachable in tests; the verifier
			// falls back to board state.
			return nil, assert.AnError
		},
	}
}

func TestPipelineRunHappyPath(t *testing.T) {
	store := newFakeReviewStore()
	engine := newFakeEngine(
		cpEval("e2e4", 30),
		cpEval("e7e5", -30),
		cpEval("g1f3", 25),
		cpEval("g8f6", -20),
		cpEval("f3e5", 150),
	)
	engine.t = t
	gen := reviewGen("Nc6 walks into the e5 outpost.", nil)
	p := newTestPipeline(store, engine, gen)

	result, err := p.Run(context.Background(), "game-1", "1. e4 e5 2. Nf3 Nc6")
	require.NoError(t, err)

	// One call per position: four plies share five positions.
	assert.Equal(t, 5, engine.calls)

	require.Len(t, result.Reviews, 4)
	assert.Equal(t, domain.LabelBest, result.Reviews[0].Label)
	assert.Equal(t, domain.LabelBest, result.Reviews[1].Label)
	assert.Equal(t, domain.LabelBest, result.Reviews[2].Label)
	assert.Equal(t, domain.LabelMistake, result.Reviews[3].Label)
	assert.Equal(t, 130, result.Reviews[3].CentipawnLoss)
	assert.Equal(t, domain.PhaseOpening, result.Reviews[3].Phase)

	assert.Equal(t, "Nc6 walks into the e5 outpost.", result.Reviews[3].Explanation)
	assert.False(t, result.Reviews[3].ExplanationFallback)
	// Unflagged moves get no explanation.
	assert.Empty(t, result.Reviews[0].Explanation)

	require.NotNil(t, result.Summary)
	assert.InDelta(t, 75.0, result.Summary.Accuracy, 0.001)
	assert.Equal(t, []string{"hangs pieces", "misses knight forks", "weak endgame technique"}, result.Summary.Weaknesses)
	assert.Empty(t, result.Summary.SoftErrors)

	assert.Equal(t, []string{statuses.StatusAnalyzing, statuses.StatusCompleted}, store.statusLog)
	require.Len(t, store.summaries, 1)
	assert.Equal(t, store.moveReviews[3].Explanation, result.Reviews[3].Explanation)

	require.NotEmpty(t, store.progressLog)
	last := store.progressLog[len(store.progressLog)-1]
	assert.Equal(t, domain.Progress{Step: StepFinalize, Percent: 100}, last)
}

func TestPipelineRunInvalidMovesFailsFast(t *testing.T) {
	store := newFakeReviewStore()
	engine := newFakeEngine()
	engine.t = t
	p := newTestPipeline(store, engine, reviewGen("", nil))

	_, err := p.Run(context.Background(), "game-2", "1. e4 e4")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)

	assert.Equal(t, []string{statuses.StatusAnalyzing, statuses.StatusFailed}, store.statusLog)
	assert.Equal(t, 0, engine.calls)
	assert.Empty(t, store.summaries)
}

func TestPipelineRunEngineFailureIsFatal(t *testing.T) {
	store := newFakeReviewStore()
	engine := newFakeEngine(
		cpEval("e2e4", 30),
		cpEval("e7e5", -30),
	)
	engine.t = t
	engine.errAt = 2
	p := newTestPipeline(store, engine, reviewGen("", nil))

	_, err := p.Run(context.Background(), "game-3", "1. e4 e5 2. Nf3 Nc6")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrEngineTimeout)
	assert.Contains(t, err.Error(), "ply 1")

	assert.Equal(t, []string{statuses.StatusAnalyzing, statuses.StatusFailed}, store.statusLog)
	assert.Empty(t, store.summaries)
	assert.Empty(t, store.moveReviews)
}

func TestPipelineRunExplanationFailuresDegradeSoftly(t *testing.T) {
	store := newFakeReviewStore()
	engine := newFakeEngine(
		cpEval("e2e4", 30),
		cpEval("g8f6", -30),
		cpEval("g1f3", 250),
		cpEval("g8f6", -250),
		cpEval("f1b5", 400),
		cpEval("g8f6", -400),
		cpEval("b5c6", 520),
	)
	engine.t = t
	gen := reviewGen("", assert.AnError)
	p := newTestPipeline(store, engine, gen)

	result, err := p.Run(context.Background(), "game-4", "1. e4 e5 2. Nf3 Nc6 3. Bb5 a6")
	require.NoError(t, err)

	var fallbacks, flagged int
	for _, r := range result.Reviews {
		if domain.Flagged(r.Label) {
			flagged++
			assert.True(t, r.ExplanationFallback, "ply %d", r.Ply)
			assert.NotEmpty(t, r.Explanation, "ply %d", r.Ply)
			assert.Contains(t, r.Explanation, "the engine preferred")
		}
		if r.ExplanationFallback {
			fallbacks++
		}
	}
	assert.Equal(t, 3, flagged)
	assert.Equal(t, 3, fallbacks)

	require.NotNil(t, result.Summary)
	assert.Len(t, result.Summary.SoftErrors, 3)
	assert.Contains(t, result.Summary.SoftErrors, "explanation fallback at ply 1")

	// Soft degradation still completes the run and saves the summary.
	assert.Equal(t, []string{statuses.StatusAnalyzing, statuses.StatusCompleted}, store.statusLog)
	require.Len(t, store.summaries, 1)
}

func TestPipelineRunReusesCachedPlyAnalysis(t *testing.T) {
	store := newFakeReviewStore()

	parsed, err := parseMoveText("1. e4 e5")
	require.NoError(t, err)
	cached := domain.PlyAnalysis{
		GameID:     "game-5",
		Ply:        0,
		FEN:        parsed.positions[0].String(),
		Move:       "e4",
		MoveUCI:    "e2e4",
		BestMove:   "e2e4",
		EvalBefore: domain.Score{CP: 30},
		EvalBest:   domain.Score{CP: 30},
		EvalAfter:  domain.Score{CP: 30},
		Depth:      12,
	}
	store.cached[0] = &cached

	engine := newFakeEngine(
		cpEval("e7e5", -30),
		cpEval("g1f3", 25),
	)
	engine.t = t
	p := newTestPipeline(store, engine, reviewGen("", nil))

	result, err := p.Run(context.Background(), "game-5", "1. e4 e5")
	require.NoError(t, err)

	// The cached ply skips the engine; only the second ply's two
	// positions are evaluated.
	assert.Equal(t, 2, engine.calls)
	assert.Equal(t, parsed.positions[1].String(), engine.fens[0])

	require.Len(t, result.Reviews, 2)
	assert.Equal(t, domain.LabelBest, result.Reviews[0].Label)
	assert.Equal(t, "e2e4", result.Reviews[0].BestMove)
}
