package etag

import (
	"net/http"
	"testing"

	"github.com/aldertree/questline/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIsDeterministic(t *testing.T) {
	a := Compute(DomainScreen, "12", "3")
	b := Compute(DomainScreen, "12", "3")
	assert.Equal(t, a, b)
}

func TestComputeFormat(t *testing.T) {
	token := Compute(DomainQuestion, "1", "1", "1")
	require.Len(t, token, 34) // 32 hex chars plus quotes
	assert.Equal(t, byte('"'), token[0])
	assert.Equal(t, byte('"'), token[len(token)-1])
}

func TestComputeSeparatesDomains(t *testing.T) {
	a := Compute(DomainScreen, "7", "1")
	b := Compute(DomainQuestion, "7", "1")
	assert.NotEqual(t, a, b)
}

func TestComputeSeparatesParts(t *testing.T) {
	// "ab"+"c" must not collide with "a"+"bc"
	a := Compute(DomainScreen, "ab", "c")
	b := Compute(DomainScreen, "a", "bc")
	assert.NotEqual(t, a, b)
}

func TestComputeRotatesWithVersion(t *testing.T) {
	a := Compute(DomainResponseSet, "5", "1")
	b := Compute(DomainResponseSet, "5", "2")
	assert.NotEqual(t, a, b)
}

func TestCombineRotatesWithAnyConstituent(t *testing.T) {
	base := Combine(DomainScreenView, "\"aaa\"", "\"bbb\"")
	changed := Combine(DomainScreenView, "\"aaa\"", "\"ccc\"")
	assert.NotEqual(t, base, changed)
	assert.Equal(t, base, Combine(DomainScreenView, "\"aaa\"", "\"bbb\""))
}

func TestEqualToleratesClientNormalization(t *testing.T) {
	token := Compute(DomainScreen, "1", "1")
	bare := token[1 : len(token)-1]

	assert.True(t, Equal(token, token))
	assert.True(t, Equal(bare, token))
	assert.True(t, Equal("W/"+token, token))
	assert.True(t, Equal("  "+token+"  ", token))
	assert.False(t, Equal(token, Compute(DomainScreen, "1", "2")))
}

func TestCheckIfMatchMissingHeader(t *testing.T) {
	err := CheckIfMatch("", Compute(DomainScreen, "1", "1"), MismatchStatusStructural)
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusPreconditionRequired, p.Status)
	assert.Equal(t, apperr.CodeIfMatchMissing, p.Code)
}

func TestCheckIfMatchWildcard(t *testing.T) {
	assert.NoError(t, CheckIfMatch("*", Compute(DomainScreen, "1", "1"), MismatchStatusStructural))
}

func TestCheckIfMatchMatch(t *testing.T) {
	current := Compute(DomainResponseSet, "9", "4")
	assert.NoError(t, CheckIfMatch(current, current, MismatchStatusAnswers))
}

func TestCheckIfMatchStaleTokenStructural(t *testing.T) {
	current := Compute(DomainScreen, "1", "2")
	stale := Compute(DomainScreen, "1", "1")

	err := CheckIfMatch(stale, current, MismatchStatusStructural)
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusPreconditionFailed, p.Status)
	assert.Equal(t, apperr.CodeIfMatchMismatch, p.Code)
}

func TestCheckIfMatchStaleTokenAnswers(t *testing.T) {
	current := Compute(DomainResponseSet, "1", "2")
	stale := Compute(DomainResponseSet, "1", "1")

	err := CheckIfMatch(stale, current, MismatchStatusAnswers)
	require.Error(t, err)
	p, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, p.Status)
	assert.Equal(t, apperr.CodeIfMatchMismatch, p.Code)
}
