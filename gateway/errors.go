package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/c360/eipcanvas/errors"
)

// statusFor maps store and import errors to HTTP status codes.
func statusFor(err error) int {
	var (
		dup         *errors.DuplicateLabelError
		childErr    *errors.ChildNotFoundError
		malformed   *errors.MalformedFlowError
		unsupported *errors.UnsupportedVersionError
		contract    *errors.ContractError
	)
	switch {
	case errors.As(err, &dup):
		return http.StatusConflict
	case errors.As(err, &childErr):
		return http.StatusNotFound
	case errors.As(err, &malformed), errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.As(err, &contract):
		return http.StatusUnprocessableEntity
	}
	if class, ok := errors.ClassOf(err); ok && class == errors.ErrorInvalid {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError writes err with its mapped status. Internal errors are logged
// and not exposed to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal server error"
	}
	writeJSONError(w, message, status)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeJSONError writes an error response in JSON format
func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
