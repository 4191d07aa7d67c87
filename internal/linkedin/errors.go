package linkedin

import (
	"errors"
	"fmt"
)

// ProviderError is a non-2xx answer from a LinkedIn endpoint.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("LinkedIn API error: %d - %s", e.Status, e.Body)
}

// IsUnauthorized reports whether err is a provider rejection of the token.
func IsUnauthorized(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Status == 401
}

// ErrMalformedResponse means a 2xx answer was missing a required field.
var ErrMalformedResponse = errors.New("malformed LinkedIn response")
