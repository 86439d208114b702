package domain

// ResultStatus classifies the outcome of refreshing one token
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusWarning ResultStatus = "warning"
	StatusError   ResultStatus = "error"
)

// TokenResult is the per-token outcome of a refresh.
// Exactly one of PriceID, Message or Error is set, matching Status.
type TokenResult struct {
	Status  ResultStatus `json:"status"`
	TokenID int64        `json:"token_id"`
	PriceID int64        `json:"price_id,omitempty"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`

	// Cause is the underlying error for StatusError results
	Cause error `json:"-"`
}

// Succeeded builds a success result for a persisted price record
func Succeeded(tokenID, priceID int64) TokenResult {
	return TokenResult{Status: StatusSuccess, TokenID: tokenID, PriceID: priceID}
}

// Warned builds a warning result
func Warned(tokenID int64, message string) TokenResult {
	return TokenResult{Status: StatusWarning, TokenID: tokenID, Message: message}
}

// Failed builds an error result
func Failed(tokenID int64, err error) TokenResult {
	return TokenResult{Status: StatusError, TokenID: tokenID, Error: err.Error(), Cause: err}
}
