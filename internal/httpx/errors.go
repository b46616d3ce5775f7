package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/ariefcatur/go-clothing-orders/internal/apperr"
	"github.com/ariefcatur/go-clothing-orders/internal/logger"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInsufficientStock, apperr.KindInvalidTransition, apperr.KindConcurrentModification:
		return http.StatusConflict
	case apperr.KindInvalidAdjustment:
		return http.StatusUnprocessableEntity
	case apperr.KindEmptyCart, apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error","kind"}. Untyped errors are logged and
// reported without their internals.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := statusFor(kind)
	if code == http.StatusInternalServerError {
		logger.Error(r.Context()).Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, code, errorBody{Error: "internal error", Kind: "internal"})
		return
	}
	writeJSON(w, code, errorBody{Error: apperr.Detail(err), Kind: string(kind)})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, err, "invalid json body")
	}
	return nil
}
