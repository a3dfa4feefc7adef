package diary

import (
	"encoding/json"
	"fmt"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// API RESPONSE ENVELOPES
// The diary API has no published contract. Depending on portal version the
// schedule items arrive under "payload", "response", "data", or as a bare
// array. The decoder accepts all four and treats anything else as an empty
// day rather than a failure.
// ══════════════════════════════════════════════════════════════════════════════

// envelopeDTO covers the known wrapper shapes of a schedule items response.
type envelopeDTO struct {
	// Payload is the wrapper used by the current family web version
	Payload json.RawMessage `json:"payload"`

	// Response is the wrapper used by older mobile-oriented endpoints
	Response json.RawMessage `json:"response"`

	// Data is the wrapper occasionally seen on mirror deployments
	Data json.RawMessage `json:"data"`
}

// decodeItems extracts the raw schedule items from a response body.
// Returns one json.RawMessage per item so that a single malformed item
// does not discard the whole day.
//
// The second return value reports whether the body had a recognized shape;
// false means the caller should log the surprise and show an empty day.
// Only a body that is not JSON at all is an error.
func decodeItems(body []byte) ([]json.RawMessage, bool, error) {
	if !json.Valid(body) {
		return nil, false, shared.WrapError("diary", "DecodeItems", shared.ErrDiaryBadPayload,
			"response is not valid JSON", nil)
	}

	// Bare array at the top level.
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err == nil {
		return items, true, nil
	}

	// Wrapped array. A non-object body (scalar) fails here, which is fine:
	// it falls through to the unrecognized-shape case below.
	var envelope envelopeDTO
	if err := json.Unmarshal(body, &envelope); err == nil {
		for _, raw := range [][]byte{envelope.Payload, envelope.Response, envelope.Data} {
			if len(raw) == 0 || string(raw) == "null" {
				continue
			}
			if err := json.Unmarshal(raw, &items); err == nil {
				return items, true, nil
			}
			// The wrapper key exists but holds something other than an
			// array. Stop probing, the shape is unknown.
			break
		}
	}

	return nil, false, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE ITEM DTOs
// ══════════════════════════════════════════════════════════════════════════════

// HomeworkItemDTO represents a single homework entry as returned by the
// diary API. This is the external representation that gets mapped to the
// domain model; every field here is optional on the wire.
type HomeworkItemDTO struct {
	// Homework is the assignment text in the current API version
	Homework string `json:"homework"`

	// Description is the assignment text in older API versions
	Description string `json:"description"`

	// Date is the lesson date in YYYY-MM-DD format
	Date string `json:"date"`

	// SubjectName is the school subject the assignment belongs to
	SubjectName string `json:"subject_name"`

	// IsDone indicates whether the student marked the assignment as done
	IsDone bool `json:"is_done"`

	// Materials are attached files and links, grouped by material
	Materials []MaterialDTO `json:"materials"`
}

// MaterialDTO represents one attached material group.
type MaterialDTO struct {
	// Title is the display name of the material
	Title string `json:"title"`

	// URLs are the links of the material; only the first one is used
	URLs []MaterialURLDTO `json:"urls"`
}

// MaterialURLDTO represents a single link inside a material group.
type MaterialURLDTO struct {
	// URL is the absolute link to the file or page
	URL string `json:"url"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR DTOs
// ══════════════════════════════════════════════════════════════════════════════

// APIError represents an error status returned by the diary API.
// Statuses other than 401 and 403 carry no stable error body, so only the
// HTTP status is preserved.
type APIError struct {
	// StatusCode is the HTTP status of the failed request
	StatusCode int

	// Body is a short prefix of the response body, kept for diagnostics
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("diary api: HTTP %d", e.StatusCode)
}

// Is reports the generic external-service error class for errors.Is checks.
func (e *APIError) Is(target error) bool {
	return target == shared.ErrExternalService
}
