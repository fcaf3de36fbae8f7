package domain

// Weights holds the score contribution of each rule family and the
// decision threshold.
type Weights struct {
	Product      float64 `json:"product"`
	Bigram       float64 `json:"bigram"`
	Technical    float64 `json:"technical"`
	Consumer     float64 `json:"consumer"`
	Regex        float64 `json:"regex"`
	NegationSoft float64 `json:"negation_soft"` // conventionally negative
	Threshold    float64 `json:"threshold"`
}

// Product is a catalog entry. DisplayName is the exact match key against
// the product names declared on a booking.
type Product struct {
	ID          string   `json:"id" yaml:"id" toml:"id"`
	DisplayName string   `json:"displayName" yaml:"displayName" toml:"displayName"`
	Keywords    []string `json:"keywords" yaml:"keywords" toml:"keywords"`
	IsHazardous bool     `json:"isHazardous" yaml:"isHazardous" toml:"isHazardous"`
}

// ProductSummary is the public projection of a Product.
type ProductSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	IsHazardous bool   `json:"isHazardous"`
}

// KeywordTechnical marks a keyword scored with the technical weight. Any
// other type is scored as consumer.
const KeywordTechnical = "technical"

// Keyword fires once when its term or any of its variants occurs in the
// search text.
type Keyword struct {
	Term     string   `json:"term" yaml:"term" toml:"term"`
	Type     string   `json:"type" yaml:"type" toml:"type"` // "technical" or "consumer"
	Variants []string `json:"variants,omitempty" yaml:"variants" toml:"variants"`
}

// Bigram is a multi-word phrase rule.
type Bigram struct {
	Phrase string `json:"phrase" yaml:"phrase" toml:"phrase"`
}

// Negation offsets the score when its term occurs and at least one of the
// keyword terms it impacts has already matched.
type Negation struct {
	Term     string   `json:"term" yaml:"term" toml:"term"`
	Variants []string `json:"variants,omitempty" yaml:"variants" toml:"variants"`
	Impacts  []string `json:"impacts" yaml:"impacts" toml:"impacts"`
}

// RegexRule is a named case-insensitive pattern.
type RegexRule struct {
	Name    string `json:"name" yaml:"name" toml:"name"`
	Pattern string `json:"pattern" yaml:"pattern" toml:"pattern"`
}

// LexiconSummary describes a loaded lexicon without exposing weights.
type LexiconSummary struct {
	Version   string `json:"version"`
	Notes     string `json:"notes,omitempty"`
	Products  int    `json:"products"`
	Keywords  int    `json:"keywords"`
	Bigrams   int    `json:"bigrams"`
	Negations int    `json:"negations"`
	Regex     int    `json:"regex"`
}
