package computeserver

import (
	"errors"
	"net/http"

	"cubed/internal/cubeerr"
)

// writeError maps a cubeerr-wrapped error to its HTTP status code and
// writes it as the response body, translating at the transport boundary
// only: internal code never hardcodes status codes, it wraps a cubeerr
// sentinel and lets the handler layer do this lookup once.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cubeerr.ErrInvalidConfiguration):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, cubeerr.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, cubeerr.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, cubeerr.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
