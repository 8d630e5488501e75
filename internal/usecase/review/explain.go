package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	domain "chess_review/internal/domain/review"
)

// Explainer composes the verified inventory, theme findings and a matching
// principles excerpt into one generation request per flagged move.
type Explainer struct {
	gen         Generator
	log         *zap.SugaredLogger
	explainGood bool
}

func NewExplainer(gen Generator, explainGood bool, log *zap.SugaredLogger) *Explainer {
	return &Explainer{gen: gen, log: log, explainGood: explainGood}
}

// ShouldExplain limits generation to moves worth commenting on.
func (e *Explainer) ShouldExplain(label string) bool {
	if domain.Flagged(label) {
		return true
	}
	return e.explainGood && label == domain.LabelGood
}

// Explain returns the comment text and whether it was generated. On any
// generation failure the templated fallback is returned instead of an empty
// field, so absence of a comment stays rare and explicit.
func (e *Explainer) Explain(ctx context.Context, pa domain.PlyAnalysis, vp domain.VerifiedPosition, tr domain.ThemeReport, label string) (string, bool) {
	text, err := e.gen.GenerateText(ctx, e.prompt(pa, vp, tr, label))
	if err != nil {
		e.log.Warnw("explanation generation failed, using fallback text",
			"ply", pa.Ply, "label", label, "error", err)
		return FallbackExplanation(pa, label), false
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackExplanation(pa, label), false
	}
	return text, true
}

// FallbackExplanation is the templated comment used when generation fails.
func FallbackExplanation(pa domain.PlyAnalysis, label string) string {
	return fmt.Sprintf("%s was %s %s; the engine preferred %s.",
		pa.Move, labelArticle(label), label, pa.BestMove)
}

func labelArticle(label string) string {
	switch label[0] {
	case 'a', 'e', 'i', 'o', 'u':
		return "an"
	}
	return "a"
}

func (e *Explainer) prompt(pa domain.PlyAnalysis, vp domain.VerifiedPosition, tr domain.ThemeReport, label string) string {
	inventory, _ := json.Marshal(struct {
		White      map[string][]string `json:"white"`
		Black      map[string][]string `json:"black"`
		SideToMove string              `json:"side_to_move"`
	}{vp.White, vp.Black, vp.SideToMove})

	var b strings.Builder
	b.WriteString("You are a chess coach reviewing one move of a finished game.\n")
	b.WriteString("Verified piece inventory before the move:\n")
	b.Write(inventory)
	b.WriteString("\n\nMove played: " + pa.Move)
	b.WriteString("\nEngine's best alternative: " + pa.BestMove)
	b.WriteString("\nQuality: " + label)

	if len(tr.Findings) > 0 {
		b.WriteString("\n\nPositional findings:\n")
		for _, f := range tr.Findings {
			b.WriteString("- " + f + "\n")
		}
	}
	if principles := selectPrinciples(tr.Findings); len(principles) > 0 {
		b.WriteString("\nRelevant principles:\n")
		for _, p := range principles {
			b.WriteString("- " + p + "\n")
		}
	}

	b.WriteString("\nExplain in at most 4 sentences why the played move falls short and what the best alternative achieves. ")
	b.WriteString("Mention only pieces from the inventory above.")
	return b.String()
}
