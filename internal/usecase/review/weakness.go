package review

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	domain "chess_review/internal/domain/review"
)

const (
	weaknessMin = 3
	weaknessMax = 5
)

// WeaknessDetector summarizes recurring mistakes per game phase with one
// generation call. It sees bucketed counts, never individual move detail.
type WeaknessDetector struct {
	gen Generator
	log *zap.SugaredLogger
}

func NewWeaknessDetector(gen Generator, log *zap.SugaredLogger) *WeaknessDetector {
	return &WeaknessDetector{gen: gen, log: log}
}

type phaseBucket struct {
	Phase        string `json:"phase"`
	Inaccuracies int    `json:"inaccuracies"`
	Mistakes     int    `json:"mistakes"`
	Blunders     int    `json:"blunders"`
}

type weaknessResponse struct {
	Weaknesses []string `json:"weaknesses"`
}

// DetectWeaknesses returns up to five weakness statements. The error is
// informational: callers always get a usable (possibly empty) list.
func (w *WeaknessDetector) DetectWeaknesses(ctx context.Context, reviews []domain.MoveReview) ([]string, error) {
	buckets := bucketByPhase(reviews)
	if len(buckets) == 0 {
		return nil, nil
	}

	prompt := `A chess game was reviewed and the flagged moves were counted per game phase.
Identify the player's recurring weaknesses. Respond with JSON only:
{"weaknesses": ["statement", ...]}
Give between 3 and 5 short statements, most important first.`

	raw, err := w.gen.GenerateJSON(ctx, prompt, buckets)
	if err != nil {
		w.log.Warnw("weakness summarization call failed", "error", err)
		return nil, err
	}

	var resp weaknessResponse
	if err := json.Unmarshal(raw, &resp); err == nil && len(resp.Weaknesses) > 0 {
		return clampWeaknesses(resp.Weaknesses), nil
	}

	// The model ignored the schema; salvage list-looking lines.
	if lines := parseWeaknessLines(string(raw)); len(lines) > 0 {
		w.log.Infow("weakness response fell back to line parsing", "lines", len(lines))
		return clampWeaknesses(lines), nil
	}

	w.log.Warnw("weakness response was unparseable", "raw", string(raw))
	return nil, nil
}

func bucketByPhase(reviews []domain.MoveReview) []phaseBucket {
	byPhase := map[string]*phaseBucket{}
	for _, r := range reviews {
		if !domain.Flagged(r.Label) {
			continue
		}
		phase := r.Phase
		if phase == "" {
			phase = domain.PhaseMiddlegame
		}
		bucket, ok := byPhase[phase]
		if !ok {
			bucket = &phaseBucket{Phase: phase}
			byPhase[phase] = bucket
		}
		switch r.Label {
		case domain.LabelInaccuracy:
			bucket.Inaccuracies++
		case domain.LabelMistake:
			bucket.Mistakes++
		case domain.LabelBlunder:
			bucket.Blunders++
		}
	}

	var out []phaseBucket
	for _, phase := range []string{domain.PhaseOpening, domain.PhaseMiddlegame, domain.PhaseEndgame} {
		if bucket, ok := byPhase[phase]; ok {
			out = append(out, *bucket)
		}
	}
	return out
}

var weaknessLineRe = regexp.MustCompile(`(?m)^\s*(?:[-*]|\d+[.)])\s*"?([^"\n]+?)"?,?\s*$`)

func parseWeaknessLines(raw string) []string {
	var out []string
	for _, match := range weaknessLineRe.FindAllStringSubmatch(raw, -1) {
		line := strings.TrimSpace(match[1])
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func clampWeaknesses(items []string) []string {
	if len(items) > weaknessMax {
		return items[:weaknessMax]
	}
	return items
}
