package review

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	goerrors "errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chess_review/internal/bootstrap"
	domain "chess_review/internal/domain/review"
	"chess_review/internal/errors"
	"chess_review/internal/httpresponse"
	"chess_review/internal/statuses"
	reviewuc "chess_review/internal/usecase/review"
)

// ResultStore is the read side the handlers need on top of the pipeline.
type ResultStore interface {
	CreateGame(ctx context.Context, g domain.Game) error
	GetGameByID(ctx context.Context, gameID string) (domain.Game, error)
	GetMoveReviews(ctx context.Context, gameID string) ([]domain.MoveReview, error)
	GetGameSummary(ctx context.Context, gameID string) (*domain.GameSummary, error)
	GetProgress(ctx context.Context, gameID string) (domain.Progress, error)
}

type ReviewHandler struct {
	cfg      bootstrap.Config
	log      *zap.SugaredLogger
	pipeline *reviewuc.Pipeline
	store    ResultStore
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewReviewHandler(cfg bootstrap.Config, log *zap.SugaredLogger, pipeline *reviewuc.Pipeline, store ResultStore) *ReviewHandler {
	return &ReviewHandler{
		cfg:      cfg,
		log:      log,
		pipeline: pipeline,
		store:    store,
	}
}

// HandleSubmitReview accepts a move transcript, registers the game and
// starts the review run in the background. Clients poll or stream progress.
func (h *ReviewHandler) HandleSubmitReview(w http.ResponseWriter, r *http.Request) {
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Errorw("failed to read request body", "error", err)
		httpresponse.WriteErrorResponse(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	var req domain.SubmitReviewRequest
	decoder := json.NewDecoder(bytes.NewReader(bodyBytes))
	decoder.DisallowUnknownFields()
	if err = decoder.Decode(&req); err != nil {
		h.log.Errorw("json decode error", "error", err)
		httpresponse.WriteErrorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.MoveText == "" {
		httpresponse.WriteErrorResponse(w, http.StatusBadRequest, "move_text is required")
		return
	}

	game := domain.Game{
		ID:        uuid.New().String(),
		MoveText:  req.MoveText,
		Status:    statuses.StatusPending,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateGame(r.Context(), game); err != nil {
		h.log.Errorw("failed to create game", "error", err)
		httpresponse.WriteInternalErrorResponse(w)
		return
	}

	// The run outlives the request; the submit context dies with it.
	go func() {
		if _, err := h.pipeline.Run(context.Background(), game.ID, game.MoveText); err != nil {
			h.log.Errorw("review run ended with error", "game_id", game.ID, "error", err)
		}
	}()

	h.log.Infow("review submitted", "game_id", game.ID)
	httpresponse.WriteResponseWithStatus(w, http.StatusAccepted, domain.SubmitReviewResponse{GameID: game.ID})
}

func (h *ReviewHandler) HandleGetReview(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		httpresponse.WriteErrorResponse(w, http.StatusBadRequest, "game_id is required")
		return
	}

	ctx := r.Context()

	game, err := h.store.GetGameByID(ctx, gameID)
	if goerrors.Is(err, errors.ErrGameNotFound) {
		httpresponse.WriteErrorResponse(w, http.StatusNotFound, "game not found")
		return
	} else if err != nil {
		h.log.Errorw("failed to load game", "game_id", gameID, "error", err)
		httpresponse.WriteInternalErrorResponse(w)
		return
	}

	result := domain.GameReviewResult{Game: game}

	if reviews, err := h.store.GetMoveReviews(ctx, gameID); err == nil {
		result.Reviews = reviews
	} else {
		h.log.Errorw("failed to load move reviews", "game_id", gameID, "error", err)
	}
	if summary, err := h.store.GetGameSummary(ctx, gameID); err == nil {
		result.Summary = summary
	} else {
		h.log.Errorw("failed to load summary", "game_id", gameID, "error", err)
	}

	httpresponse.WriteResponseWithStatus(w, http.StatusOK, result)
}

func (h *ReviewHandler) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		httpresponse.WriteErrorResponse(w, http.StatusBadRequest, "game_id is required")
		return
	}

	progress, err := h.store.GetProgress(r.Context(), gameID)
	if goerrors.Is(err, errors.ErrGameNotFound) {
		httpresponse.WriteErrorResponse(w, http.StatusNotFound, "no progress for game")
		return
	} else if err != nil {
		h.log.Errorw("failed to load progress", "game_id", gameID, "error", err)
		httpresponse.WriteInternalErrorResponse(w)
		return
	}

	httpresponse.WriteResponseWithStatus(w, http.StatusOK, progress)
}

type progressEvent struct {
	Step    string `json:"step"`
	Percent int    `json:"percent"`
	Status  string `json:"status"`
}

// HandleProgressWS streams progress updates until the run reaches a
// terminal status or the client goes away.
func (h *ReviewHandler) HandleProgressWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		httpresponse.WriteErrorResponse(w, http.StatusBadRequest, "game_id is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			game, err := h.store.GetGameByID(ctx, gameID)
			if err != nil {
				h.log.Errorw("progress stream lost game", "game_id", gameID, "error", err)
				return
			}

			event := progressEvent{Status: game.Status}
			if progress, err := h.store.GetProgress(ctx, gameID); err == nil {
				event.Step = progress.Step
				event.Percent = progress.Percent
			}

			if err := conn.WriteJSON(event); err != nil {
				return
			}
			if statuses.IsTerminal(game.Status) {
				return
			}
		}
	}
}
