package models

// CoinflipPlayer is one side of a coinflip game
type CoinflipPlayer struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Coinflip is a game as listed by the server. Fire is the creator; Ice is set
// once a counterpart joins; WinnerSide is set once the outcome is determined.
type Coinflip struct {
	ID         ID              `json:"id"`
	Amount     float64         `json:"amount"`
	Fire       *CoinflipPlayer `json:"fire,omitempty"`
	Ice        *CoinflipPlayer `json:"ice,omitempty"`
	WinnerSide string          `json:"winnerSide,omitempty"`
}

// Pot is the total at stake: both sides match the creator's amount.
func (c Coinflip) Pot() float64 {
	return c.Amount * 2
}

func (c Coinflip) CreatedBy(userID ID) bool {
	return c.Fire != nil && !userID.IsZero() && c.Fire.ID == userID
}

func (c Coinflip) HasOpponent() bool {
	return c.Ice != nil
}

func (c Coinflip) HasWinner() bool {
	return c.WinnerSide != ""
}

// ResolvedFor reports whether the game was created by userID, joined by a
// counterpart and has a terminal outcome. Any missing condition means "not yet".
func (c Coinflip) ResolvedFor(userID ID) bool {
	return c.CreatedBy(userID) && c.HasOpponent() && c.HasWinner()
}
