package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	domain "chess_review/internal/domain/review"
)

func TestShouldExplain(t *testing.T) {
	flaggedOnly := NewExplainer(&fakeGen{}, false, testLogger())
	assert.False(t, flaggedOnly.ShouldExplain(domain.LabelBest))
	assert.False(t, flaggedOnly.ShouldExplain(domain.LabelGood))
	assert.True(t, flaggedOnly.ShouldExplain(domain.LabelInaccuracy))
	assert.True(t, flaggedOnly.ShouldExplain(domain.LabelMistake))
	assert.True(t, flaggedOnly.ShouldExplain(domain.LabelBlunder))

	withGood := NewExplainer(&fakeGen{}, true, testLogger())
	assert.True(t, withGood.ShouldExplain(domain.LabelGood))
	assert.False(t, withGood.ShouldExplain(domain.LabelExcellent))
}

func TestExplainUsesGeneratedText(t *testing.T) {
	gen := &fakeGen{textFn: func(string) (string, error) {
		return "Nc6 blocks the c-pawn and lets White seize the center.", nil
	}}
	e := NewExplainer(gen, false, testLogger())

	pa := domain.PlyAnalysis{Ply: 3, Move: "Nc6", BestMove: "g8f6"}
	text, generated := e.Explain(context.Background(), pa, domain.VerifiedPosition{}, domain.ThemeReport{}, domain.LabelMistake)
	assert.True(t, generated)
	assert.Equal(t, "Nc6 blocks the c-pawn and lets White seize the center.", text)
}

func TestExplainFallsBackOnFailure(t *testing.T) {
	gen := &fakeGen{textFn: func(string) (string, error) {
		return "", assert.AnError
	}}
	e := NewExplainer(gen, false, testLogger())

	pa := domain.PlyAnalysis{Ply: 3, Move: "Nc6", BestMove: "g8f6"}
	text, generated := e.Explain(context.Background(), pa, domain.VerifiedPosition{}, domain.ThemeReport{}, domain.LabelInaccuracy)
	assert.False(t, generated)
	assert.Equal(t, "Nc6 was an inaccuracy; the engine preferred g8f6.", text)
}

func TestExplainFallsBackOnEmptyText(t *testing.T) {
	gen := &fakeGen{textFn: func(string) (string, error) {
		return "   \n", nil
	}}
	e := NewExplainer(gen, false, testLogger())

	pa := domain.PlyAnalysis{Move: "Qh5", BestMove: "g1f3"}
	text, generated := e.Explain(context.Background(), pa, domain.VerifiedPosition{}, domain.ThemeReport{}, domain.LabelBlunder)
	assert.False(t, generated)
	assert.Equal(t, "Qh5 was a blunder; the engine preferred g1f3.", text)
}

func TestExplainPromptCarriesFindingsAndInventory(t *testing.T) {
	gen := &fakeGen{textFn: func(string) (string, error) { return "ok", nil }}
	e := NewExplainer(gen, false, testLogger())

	vp := domain.VerifiedPosition{
		White:      map[string][]string{"K": {"e1"}},
		Black:      map[string][]string{"K": {"e8"}},
		SideToMove: "black",
	}
	tr := domain.ThemeReport{Findings: []string{"hanging: the black knight on d5 is attacked and undefended"}}

	pa := domain.PlyAnalysis{Move: "Nd5", BestMove: "g8f6"}
	_, _ = e.Explain(context.Background(), pa, vp, tr, domain.LabelMistake)

	prompt := gen.textCalls[0]
	assert.Contains(t, prompt, `"e1"`)
	assert.Contains(t, prompt, "hanging: the black knight on d5")
	assert.Contains(t, prompt, "Every undefended piece is a tactical target")
}

func TestSelectPrinciplesIsDeterministicAndCapped(t *testing.T) {
	findings := []string{
		"pin: the white rook on e1 pins the knight on e5 to the king",
		"fork: the white knight on e5 attacks the queen on d7 and the rook on f7",
		"hanging: the black knight on d5 is attacked and undefended",
		"weak squares near the black king: g6, h6",
		"white controls more space",
	}

	first := selectPrinciples(findings)
	assert.Len(t, first, 3)
	assert.Equal(t, first, selectPrinciples(findings))
}
