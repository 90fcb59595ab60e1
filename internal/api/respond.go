package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"sentinel-sim/internal/derive"
	"sentinel-sim/internal/sim"
)

const maxBody = 1 << 20

// errorBody is the shape of every failed response.
type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps engine and derivation errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sim.ErrInvalid), errors.Is(err, derive.ErrUnknownMetric), errors.Is(err, derive.ErrInvalidStep):
		return http.StatusBadRequest
	case errors.Is(err, sim.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sim.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// decode reads a JSON body into v. Any failure is an invalid request.
func decode(r *http.Request, v any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", sim.ErrInvalid)
		}
		return fmt.Errorf("%w: bad JSON: %v", sim.ErrInvalid, err)
	}
	return nil
}

// required fetches a mandatory query parameter.
func required(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s required", sim.ErrInvalid, name)
	}
	return v, nil
}
