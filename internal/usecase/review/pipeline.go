package review

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chess_review/internal/bootstrap"
	domain "chess_review/internal/domain/review"
	"chess_review/internal/statuses"
)

// Pipeline stages, in fixed order. Validate and EngineAnalyze failures are
// fatal for the run; Explain and DetectWeaknesses degrade softly.
const (
	StepValidate         = "validate"
	StepEngineAnalyze    = "engine_analyze"
	StepClassify         = "classify"
	StepExplain          = "explain"
	StepEstimateAccuracy = "estimate_accuracy"
	StepDetectWeaknesses = "detect_weaknesses"
	StepFinalize         = "finalize"
)

// ReviewStore is the persistence surface the pipeline drives.
type ReviewStore interface {
	UpdateGameStatus(ctx context.Context, gameID, status, errMsg string) error
	SavePlyAnalysis(ctx context.Context, pa domain.PlyAnalysis) error
	GetCachedPlyAnalysis(ctx context.Context, gameID string, ply int) (*domain.PlyAnalysis, error)
	SaveMoveReview(ctx context.Context, mr domain.MoveReview) error
	SaveGameSummary(ctx context.Context, s domain.GameSummary) error
	SetProgress(ctx context.Context, gameID, step string, percent int) error
}

// Engine is the single serialized evaluation resource.
type Engine interface {
	EvaluateAdaptive(ctx context.Context, fen string, prevWhitePOV *int) (domain.EvalResult, error)
}

// Pipeline runs one game review end to end. One instance is safe for
// concurrent games; engine access serializes inside the engine client.
type Pipeline struct {
	cfg      bootstrap.Config
	log      *zap.SugaredLogger
	store    ReviewStore
	engine   Engine
	verifier *Verifier
	themes   *ThemeAnalyzer
	explain  *Explainer
	weakness *WeaknessDetector
}

func NewPipeline(
	cfg bootstrap.Config,
	log *zap.SugaredLogger,
	store ReviewStore,
	engine Engine,
	verifier *Verifier,
	themes *ThemeAnalyzer,
	explain *Explainer,
	weakness *WeaknessDetector,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		log:      log,
		store:    store,
		engine:   engine,
		verifier: verifier,
		themes:   themes,
		explain:  explain,
		weakness: weakness,
	}
}

// runState carries everything accumulated across stages of one run.
type runState struct {
	gameID     string
	parsed     parsedGame
	analyses   []domain.PlyAnalysis
	reviews    []domain.MoveReview
	summary    domain.GameSummary
	softErrors []string
}

// Run executes the full state machine for one game. The returned error is
// non-nil only for fatal failures; soft degradation is recorded on the
// summary instead.
func (p *Pipeline) Run(ctx context.Context, gameID, moveText string) (domain.GameReviewResult, error) {
	state := &runState{gameID: gameID}

	if err := p.store.UpdateGameStatus(ctx, gameID, statuses.StatusAnalyzing, ""); err != nil {
		return domain.GameReviewResult{}, err
	}

	if err := p.stageValidate(ctx, state, moveText); err != nil {
		return domain.GameReviewResult{}, p.fail(ctx, state, err)
	}
	if err := p.stageEngineAnalyze(ctx, state); err != nil {
		return domain.GameReviewResult{}, p.fail(ctx, state, err)
	}
	if err := p.stageClassify(ctx, state); err != nil {
		return domain.GameReviewResult{}, p.fail(ctx, state, err)
	}

	p.stageExplain(ctx, state)
	p.stageEstimate(ctx, state)
	p.stageDetectWeaknesses(ctx, state)

	if err := p.stageFinalize(ctx, state); err != nil {
		return domain.GameReviewResult{}, p.fail(ctx, state, err)
	}

	return domain.GameReviewResult{
		Game:    domain.Game{ID: gameID, MoveText: moveText, Status: statuses.StatusCompleted},
		Reviews: state.reviews,
		Summary: &state.summary,
	}, nil
}

// fail is the single fatal exit: terminal status, verbatim reason, no
// summary.
func (p *Pipeline) fail(ctx context.Context, state *runState, cause error) error {
	p.log.Errorw("review run failed", "game_id", state.gameID, "error", cause)
	if err := p.store.UpdateGameStatus(ctx, state.gameID, statuses.StatusFailed, cause.Error()); err != nil {
		p.log.Errorw("failed to record run failure", "game_id", state.gameID, "error", err)
	}
	return cause
}

func (p *Pipeline) progress(ctx context.Context, gameID, step string, percent int) {
	if err := p.store.SetProgress(ctx, gameID, step, percent); err != nil {
		p.log.Warnw("failed to record progress", "game_id", gameID, "step", step, "error", err)
	}
}

func (p *Pipeline) stageValidate(ctx context.Context, state *runState, moveText string) error {
	p.progress(ctx, state.gameID, StepValidate, 5)

	parsed, err := parseMoveText(moveText)
	if err != nil {
		return err
	}
	state.parsed = parsed
	return nil
}

// stageEngineAnalyze walks the game ply by ply, strictly sequentially: all
// evaluations share the one engine process. Previously memoized plies skip
// the engine entirely.
func (p *Pipeline) stageEngineAnalyze(ctx context.Context, state *runState) error {
	total := len(state.parsed.sans)
	p.progress(ctx, state.gameID, StepEngineAnalyze, 10)

	// Evaluation of the position after the current ply, reused as the
	// "before" evaluation of the next one.
	var nextEval *domain.EvalResult
	var prevWhitePOV *int

	for ply := 0; ply < total; ply++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		beforeFEN := state.parsed.positions[ply].String()
		afterFEN := state.parsed.positions[ply+1].String()

		if cached, err := p.store.GetCachedPlyAnalysis(ctx, state.gameID, ply); err == nil && cached != nil {
			state.analyses = append(state.analyses, *cached)
			pov := domain.WhitePOV(afterFEN, cached.EvalAfter.Negated())
			prevWhitePOV = &pov
			nextEval = nil
			p.progress(ctx, state.gameID, StepEngineAnalyze, 10+50*(ply+1)/total)
			continue
		}

		cur := nextEval
		if cur == nil {
			res, err := p.engine.EvaluateAdaptive(ctx, beforeFEN, prevWhitePOV)
			if err != nil {
				return fmt.Errorf("ply %d: %w", ply, err)
			}
			cur = &res
		}

		curWhitePOV := domain.WhitePOV(beforeFEN, cur.Score)
		after, err := p.engine.EvaluateAdaptive(ctx, afterFEN, &curWhitePOV)
		if err != nil {
			return fmt.Errorf("ply %d: %w", ply, err)
		}

		pa := domain.PlyAnalysis{
			GameID:     state.gameID,
			Ply:        ply,
			FEN:        beforeFEN,
			Move:       state.parsed.sans[ply],
			MoveUCI:    state.parsed.ucis[ply],
			BestMove:   cur.BestMove,
			EvalBefore: cur.Score,
			EvalBest:   cur.Score,
			EvalAfter:  after.Score.Negated(),
			Depth:      cur.Depth,
			Candidates: cur.Candidates,
		}
		if err := p.store.SavePlyAnalysis(ctx, pa); err != nil {
			return err
		}
		state.analyses = append(state.analyses, pa)

		afterWhitePOV := domain.WhitePOV(afterFEN, after.Score)
		prevWhitePOV = &afterWhitePOV
		nextEval = &after

		p.progress(ctx, state.gameID, StepEngineAnalyze, 10+50*(ply+1)/total)
	}
	return nil
}

func (p *Pipeline) stageClassify(ctx context.Context, state *runState) error {
	p.progress(ctx, state.gameID, StepClassify, 65)

	for _, pa := range state.analyses {
		label, loss := Classify(pa.EvalAfter, pa.EvalBest, pa.PlayedBest())

		grid := snapshotBoard(state.parsed.positions[pa.Ply])
		mr := domain.MoveReview{
			GameID:        state.gameID,
			Ply:           pa.Ply,
			Move:          pa.Move,
			BestMove:      pa.BestMove,
			Label:         label,
			CentipawnLoss: loss,
			Accuracy:      MoveAccuracy(loss),
			Phase:         PhaseOf(pa.Ply, nonPawnMaterial(grid)),
		}
		if err := p.store.SaveMoveReview(ctx, mr); err != nil {
			return err
		}
		state.reviews = append(state.reviews, mr)
	}
	return nil
}

// stageExplain fans flagged moves out over a bounded worker pool. Each
// worker drives verification then themes for its own ply; results land
// keyed by ply, so completion order does not matter. Failures degrade to
// fallback text and a soft error, never a halt.
func (p *Pipeline) stageExplain(ctx context.Context, state *runState) {
	p.progress(ctx, state.gameID, StepExplain, 70)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ExplainConcurrency)

	for i := range state.reviews {
		if !p.explain.ShouldExplain(state.reviews[i].Label) {
			continue
		}
		idx := i
		g.Go(func() error {
			// A cancelled run drains: workers already started finish
			// their write, new ones stop here.
			if err := gctx.Err(); err != nil {
				return nil
			}

			pa := state.analyses[idx]
			pos := state.parsed.positions[pa.Ply]

			vp := p.verifier.VerifyPosition(gctx, pos)
			tr := p.themes.AnalyzeThemes(gctx, pos)
			text, generated := p.explain.Explain(gctx, pa, vp, tr, state.reviews[idx].Label)

			mu.Lock()
			state.reviews[idx].Explanation = text
			state.reviews[idx].ExplanationFallback = !generated
			if !generated {
				state.softErrors = append(state.softErrors,
					fmt.Sprintf("explanation fallback at ply %d", pa.Ply))
			}
			mr := state.reviews[idx]
			mu.Unlock()

			if err := p.store.SaveMoveReview(ctx, mr); err != nil {
				p.log.Errorw("failed to persist explanation", "game_id", state.gameID, "ply", pa.Ply, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) stageEstimate(ctx context.Context, state *runState) {
	p.progress(ctx, state.gameID, StepEstimateAccuracy, 85)
	state.summary = Estimate(state.gameID, state.reviews)
}

func (p *Pipeline) stageDetectWeaknesses(ctx context.Context, state *runState) {
	p.progress(ctx, state.gameID, StepDetectWeaknesses, 92)

	weaknesses, err := p.weakness.DetectWeaknesses(ctx, state.reviews)
	if err != nil {
		state.softErrors = append(state.softErrors, "weakness detection unavailable")
	}
	state.summary.Weaknesses = weaknesses
}

// stageFinalize runs exactly once per invocation on every non-fatal path.
func (p *Pipeline) stageFinalize(ctx context.Context, state *runState) error {
	state.summary.SoftErrors = state.softErrors

	if err := p.store.SaveGameSummary(ctx, state.summary); err != nil {
		return err
	}
	if err := p.store.UpdateGameStatus(ctx, state.gameID, statuses.StatusCompleted, ""); err != nil {
		return err
	}
	p.progress(ctx, state.gameID, StepFinalize, 100)

	p.log.Infow("review run completed",
		"game_id", state.gameID,
		"moves", len(state.reviews),
		"accuracy", state.summary.Accuracy,
		"soft_errors", len(state.softErrors))
	return nil
}
