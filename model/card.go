package model

import "time"

type CardStatus string

const (
	CardStatusUnused CardStatus = "unused"
	CardStatusUsed   CardStatus = "used"
)

type Card struct {
	Id          string
	RawLine     string
	Status      CardStatus
	UsedAt      *time.Time
	UsedByOrder string
	CreatedAt   time.Time
}

type InventoryStats struct {
	Unused int64 `json:"unused"`
	Used   int64 `json:"used"`
	Total  int64 `json:"total"`
}

type AddCardRequest struct {
	Line string `json:"line" validate:"required"`
}

type AddCardResponse struct {
	CardId string `json:"card_id"`
}

type IngestRequest struct {
	SessionId string   `json:"session_id"`
	Lines     []string `json:"lines" validate:"required,min=1"`
}

type IngestSessionResponse struct {
	SessionId string `json:"session_id"`
	ExpiresIn string `json:"expires_in"`
}

// IngestLineError is one rejected input line, tagged with its 1-based
// line number. Blank lines consume a number but are never reported.
type IngestLineError struct {
	Line   int    `json:"line"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

type IngestReport struct {
	Accepted     bool              `json:"accepted"`
	Added        int               `json:"added"`
	FormatErrors []IngestLineError `json:"format_errors,omitempty"`
	Duplicates   []IngestLineError `json:"duplicates,omitempty"`
	Omitted      int               `json:"omitted,omitempty"`
}
