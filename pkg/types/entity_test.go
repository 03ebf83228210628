package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvedEntityValidate(t *testing.T) {
	tests := []struct {
		name       string
		method     ResolutionMethod
		confidence float64
		wantErr    bool
	}{
		{"exact at 1.0", MethodExact, 1.0, false},
		{"exact below 1.0", MethodExact, 0.99, true},
		{"alias at floor", MethodAlias, 0.85, false},
		{"alias at 1.0", MethodAlias, 1.0, false},
		{"alias below floor", MethodAlias, 0.84, true},
		{"fuzzy at floor", MethodFuzzy, 0.6, false},
		{"fuzzy just below ceiling", MethodFuzzy, 0.8499, false},
		{"fuzzy at exclusive ceiling", MethodFuzzy, 0.85, true},
		{"fuzzy below floor", MethodFuzzy, 0.59, true},
		{"coreference at floor", MethodLLMCoreference, 0.5, false},
		{"coreference at ceiling", MethodLLMCoreference, 0.95, false},
		{"coreference above ceiling", MethodLLMCoreference, 0.96, true},
		{"bootstrap at floor", MethodDomainBootstrap, 0.5, false},
		{"bootstrap at ceiling", MethodDomainBootstrap, 0.9, false},
		{"bootstrap above ceiling", MethodDomainBootstrap, 0.91, true},
		{"negative confidence", MethodExact, -0.1, true},
		{"confidence above one", MethodAlias, 1.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ResolvedEntity{
				MentionText: "acme",
				EntityID:    "ent:organization:x",
				Method:      tt.method,
				Confidence:  tt.confidence,
			}
			err := r.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvariantViolation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolvedEntityValidateUnknownMethod(t *testing.T) {
	r := ResolvedEntity{Method: "guesswork", Confidence: 0.9}
	err := r.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariantViolation))
}

func TestOnlyExactReachesCertainty(t *testing.T) {
	// Every inference method must stay at or below the ceiling.
	for _, method := range ValidResolutionMethods {
		if method == MethodExact {
			continue
		}
		r := ResolvedEntity{Method: method, Confidence: 1.0}
		assert.Error(t, r.Validate(), "method %s must not reach 1.0", method)
	}
}

func TestConfidenceBandUnknown(t *testing.T) {
	_, _, _, err := ConfidenceBand("telepathy")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariantViolation))
}

func TestIsValidEntityType(t *testing.T) {
	assert.True(t, IsValidEntityType(EntityTypeCustomer))
	assert.True(t, IsValidEntityType(EntityTypeOrganization))
	assert.False(t, IsValidEntityType("spaceship"))
	assert.False(t, IsValidEntityType(""))
}
