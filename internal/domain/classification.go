package domain

// ClassificationResult is the verdict for one booking. Field names are part
// of the wire contract.
type ClassificationResult struct {
	BookingID   string   `json:"bookingId"`
	IsHazardous bool     `json:"isHazardous"`
	Score       float64  `json:"score"`
	Reasons     []string `json:"reasons"`
}

// Reason label prefixes, one per rule family.
const (
	ReasonProduct  = "Product Match: "
	ReasonBigram   = "Bigram: "
	ReasonKeyword  = "Keyword: "
	ReasonNegation = "Negation Applied: "
	ReasonRegex    = "Regex Match: "
)
