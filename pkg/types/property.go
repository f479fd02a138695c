package types

import "time"

// Property is one listing row as served to callers. Similarity and
// Relevance are filled in by the strategy that produced the row.
type Property struct {
	ID           string    `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description,omitempty" db:"description"`
	Price        float64   `json:"price" db:"price"`
	Location     string    `json:"location" db:"location"`
	PropertyType string    `json:"property_type" db:"property_type"`
	Bedrooms     int       `json:"bedrooms" db:"bedrooms"`
	Bathrooms    int       `json:"bathrooms" db:"bathrooms"`
	Size         float64   `json:"size" db:"size"`
	Features     []string  `json:"features,omitempty" db:"features"`
	Images       []string  `json:"images,omitempty" db:"images"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`

	// Similarity is 1 - vector distance when a vector strategy scored
	// this row.
	Similarity *float64 `json:"similarity,omitempty"`
	// Relevance is the merged ranking score on hybrid results.
	Relevance *float64 `json:"relevance,omitempty"`
}

// TextHit is one keyword-search match before merging.
type TextHit struct {
	Property Property
	Rank     int
}

// VectorHit is one similarity match before merging.
type VectorHit struct {
	Property   Property
	Similarity float64
}
