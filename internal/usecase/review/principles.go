package review

import "strings"

// Curated chess principles, keyed by the finding prefix that makes them
// relevant. Only principles matching detected themes go into a prompt, so
// king-safety advice never surfaces in a quiet material endgame.
var principlesByTheme = map[string][]string{
	"pin:": {
		"A pinned piece is not a real defender; attack it or the piece behind it.",
		"Break a pin by blocking the line, driving off the pinning piece, or moving the king.",
	},
	"fork:": {
		"Knights are the most common forking piece; watch squares a knight can reach in one move.",
		"Before every move, check which of your pieces stand on the same color complex or line.",
	},
	"discovered attack:": {
		"A discovered attack wins material when the moving piece creates a second threat.",
		"Keep your queen and king off open lines occupied by enemy sliders.",
	},
	"hanging:": {
		"Every undefended piece is a tactical target; count attackers and defenders before moving.",
		"Loose pieces drop off: connect your pieces so they defend each other.",
	},
	"weak squares": {
		"A weak square near the king invites pieces to settle there permanently.",
		"Pawn moves in front of the king are irreversible; every advance creates holes.",
	},
	"king is exposed": {
		"King safety outweighs material in the middlegame; do not open lines near your own king.",
		"Castle early and keep the pawn shield intact until the queens come off.",
	},
	"mobility advantage": {
		"Improve your worst-placed piece; activity tends to convert into concrete threats.",
	},
	"controls more space": {
		"The side with less space should trade pieces; the side with more space should avoid trades.",
	},
	"points of material": {
		"When ahead in material, simplify; when behind, seek complications and activity.",
	},
}

var principleKeys = []string{
	"pin:", "fork:", "discovered attack:", "hanging:", "weak squares",
	"king is exposed", "mobility advantage", "controls more space", "points of material",
}

// selectPrinciples picks at most three curated lines matching the findings.
func selectPrinciples(findings []string) []string {
	var selected []string
	seen := map[string]bool{}
	for _, finding := range findings {
		for _, key := range principleKeys {
			if !strings.Contains(finding, key) || seen[key] {
				continue
			}
			seen[key] = true
			selected = append(selected, principlesByTheme[key][0])
			if len(selected) >= 3 {
				return selected
			}
		}
	}
	return selected
}
