package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/notnil/chess"
	"go.uber.org/zap"

	domain "chess_review/internal/domain/review"
)

// ThemeCacheStore is an optional shared cache tier behind the in-process
// LRU, so parallel instances reuse each other's theme computation.
type ThemeCacheStore interface {
	GetThemeReport(ctx context.Context, fingerprint string) (*domain.ThemeReport, error)
	SetThemeReport(ctx context.Context, fingerprint string, tr domain.ThemeReport) error
}

// ThemeAnalyzer computes deterministic positional metrics and tactical
// findings from board state. No generation calls happen here.
type ThemeAnalyzer struct {
	log   *zap.SugaredLogger
	cache *expirable.LRU[string, domain.ThemeReport]
	store ThemeCacheStore
}

func NewThemeAnalyzer(size int, ttl time.Duration, store ThemeCacheStore, log *zap.SugaredLogger) *ThemeAnalyzer {
	return &ThemeAnalyzer{
		log:   log,
		cache: expirable.NewLRU[string, domain.ThemeReport](size, nil, ttl),
		store: store,
	}
}

// Fingerprint identifies a position by its piece placement and side to
// move; clocks and move counters do not affect themes.
func Fingerprint(pos *chess.Position) string {
	fields := strings.Fields(pos.String())
	if len(fields) < 2 {
		return pos.String()
	}
	return fields[0] + " " + fields[1]
}

func (t *ThemeAnalyzer) AnalyzeThemes(ctx context.Context, pos *chess.Position) domain.ThemeReport {
	fp := Fingerprint(pos)

	if cached, ok := t.cache.Get(fp); ok {
		return cached
	}
	if t.store != nil {
		if shared, err := t.store.GetThemeReport(ctx, fp); err == nil && shared != nil {
			t.cache.Add(fp, *shared)
			return *shared
		}
	}

	report := computeThemes(pos, fp)

	t.cache.Add(fp, report)
	if t.store != nil {
		if err := t.store.SetThemeReport(ctx, fp, report); err != nil {
			t.log.Warnw("failed to share theme report", "fingerprint", fp, "error", err)
		}
	}
	return report
}

func computeThemes(pos *chess.Position, fingerprint string) domain.ThemeReport {
	grid := snapshotBoard(pos)

	report := domain.ThemeReport{
		Fingerprint:   fingerprint,
		MaterialWhite: materialPoints(grid, chess.White),
		MaterialBlack: materialPoints(grid, chess.Black),
		MobilityWhite: mobility(grid, chess.White),
		MobilityBlack: mobility(grid, chess.Black),
		SpaceWhite:    spaceControl(grid, chess.White),
		SpaceBlack:    spaceControl(grid, chess.Black),
		KingWhite:     kingSafety(grid, chess.White),
		KingBlack:     kingSafety(grid, chess.Black),
	}
	report.MaterialBalance = report.MaterialWhite - report.MaterialBlack

	var findings []string

	if report.MaterialBalance >= 2 {
		findings = append(findings, fmt.Sprintf("white is up %d points of material", report.MaterialBalance))
	} else if report.MaterialBalance <= -2 {
		findings = append(findings, fmt.Sprintf("black is up %d points of material", -report.MaterialBalance))
	}
	if diff := report.MobilityWhite - report.MobilityBlack; diff >= 8 {
		findings = append(findings, fmt.Sprintf("white has a mobility advantage (%d vs %d)", report.MobilityWhite, report.MobilityBlack))
	} else if diff <= -8 {
		findings = append(findings, fmt.Sprintf("black has a mobility advantage (%d vs %d)", report.MobilityBlack, report.MobilityWhite))
	}
	if diff := report.SpaceWhite - report.SpaceBlack; diff >= 4 {
		findings = append(findings, "white controls more space")
	} else if diff <= -4 {
		findings = append(findings, "black controls more space")
	}
	for _, c := range []chess.Color{chess.White, chess.Black} {
		ks := report.KingWhite
		if c == chess.Black {
			ks = report.KingBlack
		}
		if ks.Verdict == "exposed" {
			findings = append(findings, fmt.Sprintf("the %s king is exposed (pawn shield %d, %d open files nearby)",
				colorName(c), ks.PawnShield, ks.OpenFiles))
		}
	}

	findings = append(findings, detectPins(grid)...)
	findings = append(findings, detectForks(grid)...)
	findings = append(findings, detectDiscoveredAttacks(grid)...)
	findings = append(findings, detectHangingPieces(grid)...)
	findings = append(findings, detectWeakSquares(grid)...)

	report.Findings = findings
	return report
}

func materialPoints(grid boardGrid, c chess.Color) int {
	total := 0
	for sq := 0; sq < 64; sq++ {
		p := grid[sq]
		if p != chess.NoPiece && p.Color() == c {
			total += pieceValue(p.Type())
		}
	}
	return total
}

// mobility counts attacked squares that are not blocked by friendly pieces,
// a pseudo-legal move count that works for either side regardless of whose
// turn it is.
func mobility(grid boardGrid, c chess.Color) int {
	count := 0
	for sq := 0; sq < 64; sq++ {
		p := grid[sq]
		if p == chess.NoPiece || p.Color() != c || p.Type() == chess.Pawn {
			continue
		}
		for _, target := range attackSquares(grid, chess.Square(sq), p) {
			occupant := grid[target]
			if occupant == chess.NoPiece || occupant.Color() != c {
				count++
			}
		}
	}
	return count
}

// spaceControl counts squares in the opponent's half attacked by pawns.
func spaceControl(grid boardGrid, c chess.Color) int {
	count := 0
	for sq := 0; sq < 64; sq++ {
		p := grid[sq]
		if p == chess.NoPiece || p.Color() != c || p.Type() != chess.Pawn {
			continue
		}
		for _, target := range attackSquares(grid, chess.Square(sq), p) {
			r := rankOf(target)
			if (c == chess.White && r >= 4) || (c == chess.Black && r <= 3) {
				count++
			}
		}
	}
	return count
}

func kingSafety(grid boardGrid, c chess.Color) domain.KingSafety {
	ks := domain.KingSafety{Verdict: "safe"}

	king, ok := kingSquare(grid, c)
	if !ok {
		return ks
	}
	kf, kr := fileOf(king), rankOf(king)

	forward := 1
	if c == chess.Black {
		forward = -1
	}

	for df := -1; df <= 1; df++ {
		f := kf + df
		if f < 0 || f > 7 {
			continue
		}
		for dist := 1; dist <= 2; dist++ {
			r := kr + forward*dist
			if r < 0 || r > 7 {
				continue
			}
			p := grid[squareAt(f, r)]
			if p != chess.NoPiece && p.Type() == chess.Pawn && p.Color() == c {
				ks.PawnShield++
			}
		}

		hasOwnPawn := false
		for r := 0; r < 8; r++ {
			p := grid[squareAt(f, r)]
			if p != chess.NoPiece && p.Type() == chess.Pawn && p.Color() == c {
				hasOwnPawn = true
				break
			}
		}
		if !hasOwnPawn {
			ks.OpenFiles++
		}
	}

	ks.WeakSquares = len(weakSquaresNearKing(grid, c))

	if ks.PawnShield < 2 && ks.OpenFiles >= 2 {
		ks.Verdict = "exposed"
	}
	return ks
}

// weakSquaresNearKing lists squares adjacent to the king that the opponent
// attacks and no friendly pawn defends.
func weakSquaresNearKing(grid boardGrid, c chess.Color) []chess.Square {
	king, ok := kingSquare(grid, c)
	if !ok {
		return nil
	}

	var weak []chess.Square
	kf, kr := fileOf(king), rankOf(king)
	for _, d := range kingDeltas {
		f, r := kf+d[0], kr+d[1]
		if f < 0 || f > 7 || r < 0 || r > 7 {
			continue
		}
		sq := squareAt(f, r)
		if len(attackers(grid, sq, c.Other())) == 0 {
			continue
		}
		pawnDefended := false
		for _, def := range attackers(grid, sq, c) {
			if grid[def].Type() == chess.Pawn {
				pawnDefended = true
				break
			}
		}
		if !pawnDefended {
			weak = append(weak, sq)
		}
	}
	return weak
}

func detectPins(grid boardGrid) []string {
	var findings []string
	for sq := 0; sq < 64; sq++ {
		p := grid[sq]
		if p == chess.NoPiece {
			continue
		}
		rays := slidingRays(p.Type())
		if rays == nil {
			continue
		}
		file, rank := fileOf(chess.Square(sq)), rankOf(chess.Square(sq))
		for _, ray := range rays {
			var pinned chess.Square
			havePinned := false
			for dist := 1; dist < 8; dist++ {
				f, r := file+ray[0]*dist, rank+ray[1]*dist
				if f < 0 || f > 7 || r < 0 || r > 7 {
					break
				}
				target := squareAt(f, r)
				occupant := grid[target]
				if occupant == chess.NoPiece {
					continue
				}
				if occupant.Color() == p.Color() {
					break
				}
				if !havePinned {
					if occupant.Type() == chess.King {
						break
					}
					pinned = target
					havePinned = true
					continue
				}
				if occupant.Type() == chess.King {
					findings = append(findings, fmt.Sprintf("pin: the %s %s on %s pins the %s on %s to the king",
						colorName(p.Color()), pieceName(p.Type()), chess.Square(sq).String(),
						pieceName(grid[pinned].Type()), pinned.String()))
				} else if occupant.Type() == chess.Queen && pieceValue(grid[pinned].Type()) < pieceValue(chess.Queen) {
					findings = append(findings, fmt.Sprintf("pin: the %s %s on %s pins the %s on %s to the queen",
						colorName(p.Color()), pieceName(p.Type()), chess.Square(sq).String(),
						pieceName(grid[pinned].Type()), pinned.String()))
				}
				break
			}
		}
	}
	return findings
}

func detectForks(grid boardGrid) []string {
	var findings []string
	for sq := 0; sq < 64; sq++ {
		p := grid[sq]
		if p == chess.NoPiece || p.Type() == chess.King {
			continue
		}
		var targets []string
		for _, a := range attackSquares(grid, chess.Square(sq), p) {
			victim := grid[a]
			if victim == chess.NoPiece || victim.Color() == p.Color() {
				continue
			}
			if victim.Type() == chess.King || pieceValue(victim.Type()) > pieceValue(p.Type()) {
				targets = append(targets, fmt.Sprintf("the %s on %s", pieceName(victim.Type()), a.String()))
			}
		}
		if len(targets) >= 2 {
			findings = append(findings, fmt.Sprintf("fork: the %s %s on %s attacks %s",
				colorName(p.Color()), pieceName(p.Type()), chess.Square(sq).String(),
				strings.Join(targets, " and ")))
		}
	}
	return findings
}

// detectDiscoveredAttacks finds friendly blockers whose departure would
// open a slider's line against the enemy king or queen.
func detectDiscoveredAttacks(grid boardGrid) []string {
	var findings []string
	for sq := 0; sq < 64; sq++ {
		p := grid[sq]
		if p == chess.NoPiece {
			continue
		}
		rays := slidingRays(p.Type())
		if rays == nil {
			continue
		}
		file, rank := fileOf(chess.Square(sq)), rankOf(chess.Square(sq))
		for _, ray := range rays {
			var blocker chess.Square
			haveBlocker := false
			for dist := 1; dist < 8; dist++ {
				f, r := file+ray[0]*dist, rank+ray[1]*dist
				if f < 0 || f > 7 || r < 0 || r > 7 {
					break
				}
				target := squareAt(f, r)
				occupant := grid[target]
				if occupant == chess.NoPiece {
					continue
				}
				if !haveBlocker {
					if occupant.Color() != p.Color() {
						break
					}
					if occupant.Type() == chess.King {
						break
					}
					blocker = target
					haveBlocker = true
					continue
				}
				if occupant.Color() != p.Color() && (occupant.Type() == chess.King || occupant.Type() == chess.Queen) {
					findings = append(findings, fmt.Sprintf("discovered attack: moving the %s %s on %s would reveal the %s on %s against the %s",
						colorName(p.Color()), pieceName(grid[blocker].Type()), blocker.String(),
						pieceName(p.Type()), chess.Square(sq).String(), pieceName(occupant.Type())))
				}
				break
			}
		}
	}
	return findings
}

func detectHangingPieces(grid boardGrid) []string {
	var findings []string
	for sq := 0; sq < 64; sq++ {
		p := grid[sq]
		if p == chess.NoPiece || p.Type() == chess.King {
			continue
		}
		if len(attackers(grid, chess.Square(sq), p.Color().Other())) == 0 {
			continue
		}
		if len(attackers(grid, chess.Square(sq), p.Color())) > 0 {
			continue
		}
		findings = append(findings, fmt.Sprintf("hanging: the %s %s on %s is attacked and undefended",
			colorName(p.Color()), pieceName(p.Type()), chess.Square(sq).String()))
	}
	return findings
}

func detectWeakSquares(grid boardGrid) []string {
	var findings []string
	for _, c := range []chess.Color{chess.White, chess.Black} {
		weak := weakSquaresNearKing(grid, c)
		if len(weak) < 2 {
			continue
		}
		names := make([]string, 0, len(weak))
		for _, sq := range weak {
			names = append(names, sq.String())
		}
		findings = append(findings, fmt.Sprintf("weak squares near the %s king: %s",
			colorName(c), strings.Join(names, ", ")))
	}
	return findings
}
