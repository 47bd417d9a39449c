package domain

// BetTotals is the raw aggregate row behind StatsResponse.
type BetTotals struct {
	Bets    int64 `bson:"bets"`
	Wagered int64 `bson:"wagered"`
	Wins    int64 `bson:"wins"`
	PaidOut int64 `bson:"paid_out"`
}

// StatsResponse is the public aggregate view over all settled bets.
type StatsResponse struct {
	TotalUsers   int64   `json:"total_users"`
	TotalBets    int64   `json:"total_bets"`
	TotalWagered int64   `json:"total_wagered"`
	TotalWon     int64   `json:"total_won"`
	WinRate      float64 `json:"win_rate"`
	HouseEdge    float64 `json:"house_edge"`
	MinBet       int64   `json:"min_bet"`
	MaxBet       int64   `json:"max_bet"`
}

// ConfigResponse is the public game parameter sheet: everything a client
// needs to place a bet by paying a vault address.
type ConfigResponse struct {
	Network       string         `json:"network"`
	HouseEdge     float64        `json:"house_edge"`
	MinBet        int64          `json:"min_bet"`
	MaxBet        int64          `json:"max_bet"`
	MinMultiplier float64        `json:"min_multiplier"`
	MaxMultiplier float64        `json:"max_multiplier"`
	Multipliers   []float64      `json:"multipliers"`
	Vaults        []VaultSummary `json:"vaults"`
}
