package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/domain"
)

type problem struct {
	Kind    string            `json:"kind"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorBody struct {
	Error problem `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("httpapi: encode response", "err", err)
	}
}

func writeProblem(w http.ResponseWriter, status int, kind, msg string, fields map[string]string) {
	writeJSON(w, status, errorBody{Error: problem{Kind: kind, Message: msg, Fields: fields}})
}

// writeError traduce la taxonomía de errores del dominio a códigos HTTP.
// Los errores de infraestructura no filtran detalles al cliente.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		slog.Error("httpapi: internal error", "method", r.Method, "path", r.URL.Path, "err", err)
		writeProblem(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	status := statusFor(de.Kind)
	if status >= http.StatusInternalServerError {
		slog.Error("httpapi: request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorBody{Error: problem{
		Kind:    string(de.Kind),
		Code:    de.Code,
		Message: de.Msg,
		Fields:  de.Fields,
	}})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindLiquidity:
		return http.StatusConflict
	case domain.KindCircuitTripped:
		return http.StatusLocked
	case domain.KindStalePrice:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// readJSON decodifica el body rechazando campos desconocidos.
func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Validation("", "request body too large", "limit", tooLarge.Limit)
		}
		return domain.Validation("", fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.Validation("", key+" must be a non-negative integer", key, raw)
	}
	return n, nil
}

func queryDecimal(r *http.Request, key string) (decimal.Decimal, error) {
	raw := r.URL.Query().Get(key)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, domain.Validation("", key+" must be a decimal", key, raw)
	}
	return d, nil
}
