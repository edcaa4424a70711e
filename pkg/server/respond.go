package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kadirpekel/gutensearch/pkg/guten"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errInvalidRequest marks client mistakes detected by the handlers
// themselves, before any downstream call.
var errInvalidRequest = errors.New("invalid request")

// writeError maps domain failures to HTTP statuses. Unclassified errors are
// internal.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, guten.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, guten.ErrBookFormat):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, guten.ErrTransport):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
