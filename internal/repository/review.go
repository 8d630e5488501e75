package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goerrors "errors"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"chess_review/internal/bootstrap"
	"chess_review/internal/domain/review"
	"chess_review/internal/errors"
	"chess_review/internal/statuses"
)

const (
	plyCacheTTL   = 24 * time.Hour
	themeCacheTTL = 24 * time.Hour
	progressTTL   = 24 * time.Hour
)

// ReviewRepository persists review records in mongo and memoizes hot state
// (ply analyses, theme reports, progress) in redis.
type ReviewRepository struct {
	cfg   bootstrap.Config
	log   *zap.SugaredLogger
	redis *redis.Client
	mongo *mongo.Database
}

func NewReviewRepository(cfg bootstrap.Config, log *zap.SugaredLogger, redisClient *redis.Client, mongoDB *mongo.Database) *ReviewRepository {
	return &ReviewRepository{
		cfg:   cfg,
		log:   log,
		redis: redisClient,
		mongo: mongoDB,
	}
}

func (r *ReviewRepository) CreateGame(ctx context.Context, g review.Game) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.mongo.Collection("games").InsertOne(ctx, g); err != nil {
		r.log.Errorw("failed to insert game", "game_id", g.ID, "error", err)
		return fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return nil
}

func (r *ReviewRepository) UpdateGameStatus(ctx context.Context, gameID, status, errMsg string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{"status": status, "error": errMsg}
	if statuses.IsTerminal(status) {
		now := time.Now()
		set["finished_at"] = now
	}

	_, err := r.mongo.Collection("games").UpdateOne(ctx,
		bson.M{"id": gameID},
		bson.M{"$set": set},
	)
	if err != nil {
		r.log.Errorw("failed to update game status", "game_id", gameID, "status", status, "error", err)
		return fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return nil
}

func (r *ReviewRepository) GetGameByID(ctx context.Context, gameID string) (review.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var g review.Game
	err := r.mongo.Collection("games").FindOne(ctx, bson.M{"id": gameID}).Decode(&g)
	if goerrors.Is(err, mongo.ErrNoDocuments) {
		return review.Game{}, errors.ErrGameNotFound
	} else if err != nil {
		return review.Game{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return g, nil
}

// SavePlyAnalysis upserts by (game, ply) and memoizes the record in redis
// so a pipeline re-run does not repeat the engine work.
func (r *ReviewRepository) SavePlyAnalysis(ctx context.Context, pa review.PlyAnalysis) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	_, err := r.mongo.Collection("ply_analyses").ReplaceOne(ctx,
		bson.M{"game_id": pa.GameID, "ply": pa.Ply}, pa, opts)
	if err != nil {
		r.log.Errorw("failed to upsert ply analysis", "game_id", pa.GameID, "ply", pa.Ply, "error", err)
		return fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	if payload, err := json.Marshal(pa); err == nil {
		if err := r.redis.Set(ctx, plyKey(pa.GameID, pa.Ply), payload, plyCacheTTL).Err(); err != nil {
			r.log.Warnw("failed to memoize ply analysis", "game_id", pa.GameID, "ply", pa.Ply, "error", err)
		}
	}
	return nil
}

// GetCachedPlyAnalysis returns nil without error on a cache miss.
func (r *ReviewRepository) GetCachedPlyAnalysis(ctx context.Context, gameID string, ply int) (*review.PlyAnalysis, error) {
	val, err := r.redis.Get(ctx, plyKey(gameID, ply)).Result()
	if goerrors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	var pa review.PlyAnalysis
	if err := json.Unmarshal([]byte(val), &pa); err != nil {
		return nil, nil
	}
	return &pa, nil
}

func (r *ReviewRepository) SaveMoveReview(ctx context.Context, mr review.MoveReview) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	_, err := r.mongo.Collection("move_reviews").ReplaceOne(ctx,
		bson.M{"game_id": mr.GameID, "ply": mr.Ply}, mr, opts)
	if err != nil {
		r.log.Errorw("failed to upsert move review", "game_id", mr.GameID, "ply", mr.Ply, "error", err)
		return fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return nil
}

func (r *ReviewRepository) GetMoveReviews(ctx context.Context, gameID string) ([]review.MoveReview, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.M{"ply": 1})
	cursor, err := r.mongo.Collection("move_reviews").Find(ctx, bson.M{"game_id": gameID}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	defer cursor.Close(ctx)

	var result []review.MoveReview
	for cursor.Next(ctx) {
		var mr review.MoveReview
		if err := cursor.Decode(&mr); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
		}
		result = append(result, mr)
	}
	return result, nil
}

func (r *ReviewRepository) SaveGameSummary(ctx context.Context, s review.GameSummary) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	_, err := r.mongo.Collection("summaries").ReplaceOne(ctx,
		bson.M{"game_id": s.GameID}, s, opts)
	if err != nil {
		r.log.Errorw("failed to upsert game summary", "game_id", s.GameID, "error", err)
		return fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return nil
}

func (r *ReviewRepository) GetGameSummary(ctx context.Context, gameID string) (*review.GameSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var s review.GameSummary
	err := r.mongo.Collection("summaries").FindOne(ctx, bson.M{"game_id": gameID}).Decode(&s)
	if goerrors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return &s, nil
}

func (r *ReviewRepository) SetProgress(ctx context.Context, gameID, step string, percent int) error {
	payload, err := json.Marshal(review.Progress{Step: step, Percent: percent})
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, progressKey(gameID), payload, progressTTL).Err()
}

func (r *ReviewRepository) GetProgress(ctx context.Context, gameID string) (review.Progress, error) {
	val, err := r.redis.Get(ctx, progressKey(gameID)).Result()
	if goerrors.Is(err, redis.Nil) {
		return review.Progress{}, errors.ErrGameNotFound
	} else if err != nil {
		return review.Progress{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	var p review.Progress
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return review.Progress{}, err
	}
	return p, nil
}

// GetThemeReport is the shared persistence tier behind the in-process theme
// cache; reports are deterministic per position, so 24h is safe.
func (r *ReviewRepository) GetThemeReport(ctx context.Context, fingerprint string) (*review.ThemeReport, error) {
	val, err := r.redis.Get(ctx, themeKey(fingerprint)).Result()
	if goerrors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var tr review.ThemeReport
	if err := json.Unmarshal([]byte(val), &tr); err != nil {
		return nil, nil
	}
	return &tr, nil
}

func (r *ReviewRepository) SetThemeReport(ctx context.Context, fingerprint string, tr review.ThemeReport) error {
	payload, err := json.Marshal(tr)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, themeKey(fingerprint), payload, themeCacheTTL).Err()
}

func plyKey(gameID string, ply int) string {
	return fmt.Sprintf("ply:%s:%d", gameID, ply)
}

func progressKey(gameID string) string {
	return "progress:" + gameID
}

func themeKey(fingerprint string) string {
	return "themes:" + fingerprint
}
