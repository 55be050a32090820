package httpx

import (
	"errors"
	"net/http"
)

// ErrMalformedBody indicates the request body is not valid JSON for the endpoint.
var ErrMalformedBody = errors.New("invalid request body")

// Mapping pairs a domain error with the status and message key it maps to.
type Mapping struct {
	Err     error
	Status  int
	Message string
}

// Resolve returns the status and message key of the first mapping matching
// err, falling back to 500 and fallback.
func Resolve(err error, mappings []Mapping, fallback string) (int, string) {
	if errors.Is(err, ErrMalformedBody) {
		return http.StatusBadRequest, ErrMalformedBody.Error()
	}
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			return m.Status, m.Message
		}
	}
	return http.StatusInternalServerError, fallback
}
