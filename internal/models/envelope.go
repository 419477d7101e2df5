package models

// Event types carried by an Envelope.
const (
	EventRegister = "register"
	EventBook     = "book"
	EventAccount  = "account"
	EventNews     = "news"
)

// Envelope is one line of the event feed. Exactly one payload matches Type.
type Envelope struct {
	Type        string           `json:"type"`
	CaseMeta    *Registration    `json:"case_meta,omitempty"`
	MarketState *BookUpdate      `json:"market_state,omitempty"`
	TraderState *AccountSnapshot `json:"trader_state,omitempty"`
	News        *RawNews         `json:"news,omitempty"`
}
