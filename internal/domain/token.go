package domain

import "time"

// Token is a tracked asset owned by a user. Symbol, Address and CEXSymbol
// are each unique per owner.
type Token struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Symbol    string    `json:"symbol"`
	Chain     string    `json:"chain"`
	Address   string    `json:"address"`
	CEXSymbol string    `json:"cex_symbol"`
	CreatedAt time.Time `json:"created_at"`
}
