// Package etag derives and validates the opaque version tokens used for
// optimistic concurrency. Tokens are compared byte-for-byte and never
// parsed for meaning.
package etag

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/aldertree/questline/internal/apperr"
)

// Domain prefixes keep tokens for different entity types disjoint even
// when their version tuples collide.
const (
	DomainQuestionnaire = "questline/questionnaire/v1"
	DomainScreen        = "questline/screen/v1"
	DomainQuestion      = "questline/question/v1"
	DomainResponseSet   = "questline/response-set/v1"
	DomainAnswer        = "questline/answer/v1"
	DomainScreenView    = "questline/screen-view/v1"
)

// Compute hashes a domain prefix plus the entity's version parts into a
// quoted token. Parts are null-separated so boundaries cannot be forged by
// concatenation.
func Compute(domain string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write([]byte{0x00})
		h.Write([]byte(p))
	}
	return `"` + hex.EncodeToString(h.Sum(nil))[:32] + `"`
}

// Combine derives a composite token from constituent tokens, so any
// constituent change rotates the composite.
func Combine(domain string, tokens ...string) string {
	return Compute(domain, tokens...)
}

// CheckIfMatch validates an If-Match header against the current token.
// mismatchStatus is the HTTP status used for a present-but-wrong token
// (409 for answer mutations, 412 for structural authoring).
func CheckIfMatch(header, current string, mismatchStatus int) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return apperr.PreconditionRequired("this operation requires an If-Match header")
	}
	if header == "*" || Equal(header, current) {
		return nil
	}
	return apperr.PreconditionFailed(mismatchStatus, "the provided ETag does not match the current resource state")
}

// Equal compares two tokens, tolerating absent quoting and weak-validator
// prefixes on the client side. Any other byte difference is a mismatch.
func Equal(a, b string) bool {
	return normalize(a) == normalize(b)
}

func normalize(t string) string {
	t = strings.TrimSpace(t)
	t = strings.TrimPrefix(t, "W/")
	return strings.Trim(t, `"`)
}

// MismatchStatusAnswers is the mapping used by the answer mutation path.
const MismatchStatusAnswers = http.StatusConflict

// MismatchStatusStructural is the mapping used by authoring mutations.
const MismatchStatusStructural = http.StatusPreconditionFailed
