package review

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/notnil/chess"
	"go.uber.org/zap"

	domain "chess_review/internal/domain/review"
)

// Generator is the text-generation capability the review stages depend on.
// Every response is untrusted input until parsed and validated.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
}

const confidencePenaltyPerDiscrepancy = 0.05

// Verifier cross-checks a generated piece inventory against the authoritative
// board state before any of it reaches generated text. The board is always
// the fallback, never the model's output.
type Verifier struct {
	gen           Generator
	log           *zap.SugaredLogger
	maxRetries    int
	confidenceMin float64
}

func NewVerifier(gen Generator, maxRetries int, confidenceMin float64, log *zap.SugaredLogger) *Verifier {
	return &Verifier{gen: gen, log: log, maxRetries: maxRetries, confidenceMin: confidenceMin}
}

type inventoryResponse struct {
	White      map[string][]string `json:"white"`
	Black      map[string][]string `json:"black"`
	SideToMove string              `json:"side_to_move"`
}

// VerifyPosition runs the extract-validate-retry loop. It never returns a
// hallucinated inventory: on persistent divergence or an unreachable
// generation service it falls back to the ground truth with needs_review.
func (v *Verifier) VerifyPosition(ctx context.Context, pos *chess.Position) domain.VerifiedPosition {
	truth := GroundTruth(pos)

	feedback := ""
	for attempt := 0; attempt <= v.maxRetries; attempt++ {
		raw, err := v.gen.GenerateJSON(ctx, v.prompt(pos, feedback), nil)
		if err != nil {
			v.log.Warnw("position extraction call failed, using board state directly",
				"attempt", attempt, "error", err)
			return fallback(truth)
		}

		var inv inventoryResponse
		if err := json.Unmarshal(raw, &inv); err != nil {
			feedback = "The previous response was not valid JSON. Respond with the exact schema only."
			v.log.Infow("position extraction returned malformed JSON", "attempt", attempt, "error", err)
			continue
		}

		minor, major := diffInventory(truth, inv)
		if len(major) == 0 {
			verified := truth
			verified.Status = domain.VerificationVerified
			verified.Confidence = 1.0 - confidencePenaltyPerDiscrepancy*float64(len(minor))
			if verified.Confidence < 0 {
				verified.Confidence = 0
			}
			if len(minor) > 0 {
				v.log.Infow("position verified with minor discrepancies",
					"attempt", attempt, "discrepancies", minor)
			}
			// Too many small errors add up to an untrustworthy reading
			// even when the piece counts line up.
			if verified.Confidence < v.confidenceMin {
				verified.Status = domain.VerificationNeedsReview
				v.log.Infow("verified inventory is below the confidence floor",
					"confidence", verified.Confidence, "floor", v.confidenceMin)
			}
			return verified
		}

		feedback = "Your previous listing was wrong: " + strings.Join(major, "; ") +
			". Re-check the FEN square by square and answer again."
		v.log.Infow("position extraction diverged from board state",
			"attempt", attempt, "discrepancies", major)
	}

	v.log.Warnw("position extraction still divergent after retries, using board state directly",
		"retries", v.maxRetries)
	return fallback(truth)
}

func fallback(truth domain.VerifiedPosition) domain.VerifiedPosition {
	truth.Status = domain.VerificationNeedsReview
	truth.Confidence = 1.0
	return truth
}

func (v *Verifier) prompt(pos *chess.Position, feedback string) string {
	var b strings.Builder
	b.WriteString("List every piece on this chess board.\n")
	b.WriteString("FEN: " + pos.String() + "\n")
	b.WriteString(`Respond with JSON only, schema:
{"white": {"K": ["e1"], "Q": [], "R": [], "B": [], "N": [], "P": []},
 "black": {"K": [], "Q": [], "R": [], "B": [], "N": [], "P": []},
 "side_to_move": "white"}
Use lowercase square names and uppercase piece letters.`)
	if feedback != "" {
		b.WriteString("\n\n" + feedback)
	}
	return b.String()
}

var pieceLetters = map[chess.PieceType]string{
	chess.King:   "K",
	chess.Queen:  "Q",
	chess.Rook:   "R",
	chess.Bishop: "B",
	chess.Knight: "N",
	chess.Pawn:   "P",
}

// GroundTruth derives the authoritative piece inventory from the board.
func GroundTruth(pos *chess.Position) domain.VerifiedPosition {
	grid := snapshotBoard(pos)

	truth := domain.VerifiedPosition{
		White:      map[string][]string{},
		Black:      map[string][]string{},
		SideToMove: colorName(pos.Turn()),
	}
	for sq := 0; sq < 64; sq++ {
		p := grid[sq]
		if p == chess.NoPiece {
			continue
		}
		letter := pieceLetters[p.Type()]
		if p.Color() == chess.White {
			truth.White[letter] = append(truth.White[letter], chess.Square(sq).String())
		} else {
			truth.Black[letter] = append(truth.Black[letter], chess.Square(sq).String())
		}
	}
	return truth
}

// diffInventory compares a generated inventory against ground truth.
// A square mismatch with matching piece counts is minor; a missing or
// hallucinated piece is major and triggers a retry.
func diffInventory(truth domain.VerifiedPosition, inv inventoryResponse) (minor, major []string) {
	sides := []struct {
		name  string
		truth map[string][]string
		got   map[string][]string
	}{
		{"white", truth.White, inv.White},
		{"black", truth.Black, inv.Black},
	}

	for _, side := range sides {
		for _, letter := range []string{"K", "Q", "R", "B", "N", "P"} {
			want := append([]string(nil), side.truth[letter]...)
			got := append([]string(nil), normalizeSquares(side.got[letter])...)
			sort.Strings(want)
			sort.Strings(got)

			if len(want) != len(got) {
				if len(got) > len(want) {
					major = append(major, fmt.Sprintf("%s %s: you listed %d but the board has %d (hallucinated piece)",
						side.name, pieceName(letterType(letter)), len(got), len(want)))
				} else {
					major = append(major, fmt.Sprintf("%s %s: you listed %d but the board has %d (missing piece)",
						side.name, pieceName(letterType(letter)), len(got), len(want)))
				}
				continue
			}
			for i := range want {
				if want[i] != got[i] {
					minor = append(minor, fmt.Sprintf("%s %s: expected %s, got %s",
						side.name, pieceName(letterType(letter)), want[i], got[i]))
				}
			}
		}
	}
	return minor, major
}

func normalizeSquares(squares []string) []string {
	out := make([]string, 0, len(squares))
	for _, s := range squares {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}

func letterType(letter string) chess.PieceType {
	switch letter {
	case "K":
		return chess.King
	case "Q":
		return chess.Queen
	case "R":
		return chess.Rook
	case "B":
		return chess.Bishop
	case "N":
		return chess.Knight
	}
	return chess.Pawn
}
