package review

// KingSafety describes one side's king position.
type KingSafety struct {
	PawnShield  int    `json:"pawn_shield"`
	OpenFiles   int    `json:"open_files"`
	WeakSquares int    `json:"weak_squares"`
	Verdict     string `json:"verdict"` // safe | exposed
}

// ThemeReport holds the deterministic positional metrics for one position.
// Findings are short prose fragments ready for inclusion in generated text.
type ThemeReport struct {
	Fingerprint     string     `json:"fingerprint"`
	MaterialWhite   int        `json:"material_white"`
	MaterialBlack   int        `json:"material_black"`
	MaterialBalance int        `json:"material_balance"` // white minus black
	MobilityWhite   int        `json:"mobility_white"`
	MobilityBlack   int        `json:"mobility_black"`
	SpaceWhite      int        `json:"space_white"`
	SpaceBlack      int        `json:"space_black"`
	KingWhite       KingSafety `json:"king_white"`
	KingBlack       KingSafety `json:"king_black"`
	Findings        []string   `json:"findings"`
}
