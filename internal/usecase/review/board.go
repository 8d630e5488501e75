package review

import (
	"github.com/notnil/chess"
)

// boardGrid is a fixed-order snapshot of the board, indexed by square
// (a1=0 .. h8=63). Scanning it keeps every derived metric deterministic.
type boardGrid [64]chess.Piece

func snapshotBoard(pos *chess.Position) boardGrid {
	var grid boardGrid
	board := pos.Board()
	for sq := 0; sq < 64; sq++ {
		grid[sq] = board.Piece(chess.Square(sq))
	}
	return grid
}

func squareAt(file, rank int) chess.Square {
	return chess.Square(rank*8 + file)
}

func fileOf(sq chess.Square) int { return int(sq) % 8 }
func rankOf(sq chess.Square) int { return int(sq) / 8 }

func pieceValue(pt chess.PieceType) int {
	switch pt {
	case chess.Pawn:
		return 1
	case chess.Knight, chess.Bishop:
		return 3
	case chess.Rook:
		return 5
	case chess.Queen:
		return 9
	}
	return 0
}

func pieceName(pt chess.PieceType) string {
	switch pt {
	case chess.King:
		return "king"
	case chess.Queen:
		return "queen"
	case chess.Rook:
		return "rook"
	case chess.Bishop:
		return "bishop"
	case chess.Knight:
		return "knight"
	case chess.Pawn:
		return "pawn"
	}
	return "piece"
}

func colorName(c chess.Color) string {
	if c == chess.White {
		return "white"
	}
	return "black"
}

var (
	knightDeltas = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingDeltas   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	bishopRays   = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	rookRays     = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
)

func slidingRays(pt chess.PieceType) [][2]int {
	switch pt {
	case chess.Bishop:
		return bishopRays[:]
	case chess.Rook:
		return rookRays[:]
	case chess.Queen:
		rays := make([][2]int, 0, 8)
		rays = append(rays, rookRays[:]...)
		rays = append(rays, bishopRays[:]...)
		return rays
	}
	return nil
}

// attackSquares lists every square the piece on sq attacks, including
// squares occupied by friendly pieces (an attack on a friend is a defense).
func attackSquares(grid boardGrid, sq chess.Square, p chess.Piece) []chess.Square {
	file, rank := fileOf(sq), rankOf(sq)
	var out []chess.Square

	step := func(df, dr int) (chess.Square, bool) {
		f, r := file+df, rank+dr
		if f < 0 || f > 7 || r < 0 || r > 7 {
			return 0, false
		}
		return squareAt(f, r), true
	}

	switch p.Type() {
	case chess.Pawn:
		dir := 1
		if p.Color() == chess.Black {
			dir = -1
		}
		for _, df := range []int{-1, 1} {
			if target, ok := step(df, dir); ok {
				out = append(out, target)
			}
		}
	case chess.Knight:
		for _, d := range knightDeltas {
			if target, ok := step(d[0], d[1]); ok {
				out = append(out, target)
			}
		}
	case chess.King:
		for _, d := range kingDeltas {
			if target, ok := step(d[0], d[1]); ok {
				out = append(out, target)
			}
		}
	case chess.Bishop, chess.Rook, chess.Queen:
		for _, ray := range slidingRays(p.Type()) {
			for dist := 1; dist < 8; dist++ {
				target, ok := step(ray[0]*dist, ray[1]*dist)
				if !ok {
					break
				}
				out = append(out, target)
				if grid[target] != chess.NoPiece {
					break
				}
			}
		}
	}
	return out
}

// attackers lists the squares of all pieces of the given color attacking
// the target square, in board order.
func attackers(grid boardGrid, target chess.Square, by chess.Color) []chess.Square {
	var out []chess.Square
	for sq := 0; sq < 64; sq++ {
		p := grid[sq]
		if p == chess.NoPiece || p.Color() != by {
			continue
		}
		for _, a := range attackSquares(grid, chess.Square(sq), p) {
			if a == target {
				out = append(out, chess.Square(sq))
				break
			}
		}
	}
	return out
}

func kingSquare(grid boardGrid, c chess.Color) (chess.Square, bool) {
	for sq := 0; sq < 64; sq++ {
		p := grid[sq]
		if p != chess.NoPiece && p.Type() == chess.King && p.Color() == c {
			return chess.Square(sq), true
		}
	}
	return 0, false
}

// nonPawnMaterial sums both sides' piece points excluding pawns and kings.
// Used for phase detection.
func nonPawnMaterial(grid boardGrid) int {
	total := 0
	for sq := 0; sq < 64; sq++ {
		p := grid[sq]
		if p == chess.NoPiece || p.Type() == chess.Pawn || p.Type() == chess.King {
			continue
		}
		total += pieceValue(p.Type())
	}
	return total
}
