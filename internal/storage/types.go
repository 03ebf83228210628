package storage

import (
	"errors"

	"github.com/scrypster/recall/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// FuzzyMatch pairs an entity with its trigram similarity to the search name.
type FuzzyMatch struct {
	// Entity is the matched canonical entity.
	Entity types.Entity

	// Score is the similarity in [0,1]; 1.0 is an exact normalized match.
	Score float64
}

// VectorMatch pairs a memory with its raw embedding similarity to the query.
type VectorMatch struct {
	// Memory is the matched memory.
	Memory types.Memory

	// Similarity is cosine similarity in [-1,1] as reported by the backend.
	Similarity float64
}

// DomainRecord is a row of the external structured database describing a
// business entity. It is the seed for domain-bootstrapped canonical entities.
type DomainRecord struct {
	// ExternalID is the primary key of the row in the domain database.
	ExternalID string

	// Name is the display name stored in the domain database.
	Name string

	// NormalizedName is the lowercased, whitespace-collapsed name.
	NormalizedName string

	// EntityType classifies the row (customer, order, product, ...).
	EntityType string
}
