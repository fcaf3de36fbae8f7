package domain

// Booking is a single record submitted for classification.
type Booking struct {
	// Core identifiers
	ID string `json:"id"`

	// Descriptive fields, carried through but never inspected by the engine
	CustomerName string `json:"customerName,omitempty"`
	CompanyName  string `json:"companyName,omitempty"`
	BookingDate  string `json:"bookingDate,omitempty"`

	// Free text searched by the engine
	Description   string `json:"description"`
	InternalNotes string `json:"internalNotes"`

	// Declared product display names
	Products []string `json:"products"`

	// ExpectedIsHazardous is an optional label used by offline evaluation.
	ExpectedIsHazardous *bool `json:"expectedIsHazardous,omitempty"`
}
