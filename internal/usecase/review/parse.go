package review

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/notnil/chess"

	"chess_review/internal/errors"
)

var moveNumberRe = regexp.MustCompile(`^\d+\.+`)

// parsedGame is the replayed move sequence: positions has one entry per
// position, so positions[i] is the board before move i and len(positions)
// is len(sans)+1.
type parsedGame struct {
	positions []*chess.Position
	sans      []string
	ucis      []string
}

// parseMoveText replays a SAN transcript ("1. e4 e5 2. Nf3 ..." or bare
// "e4 e5 Nf3"). Any illegal or unreadable move fails validation.
func parseMoveText(moveText string) (parsedGame, error) {
	game := chess.NewGame()

	moveIndex := 0
	for _, token := range strings.Fields(moveText) {
		token = moveNumberRe.ReplaceAllString(token, "")
		if token == "" || isResultToken(token) {
			continue
		}
		if err := game.MoveStr(token); err != nil {
			return parsedGame{}, fmt.Errorf("%w: move %d (%q): %v",
				errors.ErrValidation, moveIndex+1, token, err)
		}
		moveIndex++
	}

	moves := game.Moves()
	if len(moves) == 0 {
		return parsedGame{}, fmt.Errorf("%w: no moves found", errors.ErrValidation)
	}

	positions := game.Positions()
	parsed := parsedGame{positions: positions}
	notation := chess.UCINotation{}
	san := chess.AlgebraicNotation{}
	for i, move := range moves {
		parsed.ucis = append(parsed.ucis, notation.Encode(positions[i], move))
		parsed.sans = append(parsed.sans, san.Encode(positions[i], move))
	}
	return parsed, nil
}

func isResultToken(token string) bool {
	switch token {
	case "1-0", "0-1", "1/2-1/2", "*", "...":
		return true
	}
	return false
}
