package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/authgate/internal/common"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detail)
}

// writeError maps service errors onto HTTP statuses. Anything unknown is a
// 500 with a generic body; the caller logs it.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidCredentials):
		unauthorized(w, "Invalid credentials")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		unauthorized(w, "Refresh token expired")
	case errors.Is(err, common.ErrTokenExpired):
		unauthorized(w, "Token has expired")
	case errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrWrongTokenKind),
		errors.Is(err, common.ErrorUnauthorized):
		unauthorized(w, "Could not validate credentials")
	case errors.Is(err, common.ErrInvalidMFACode),
		errors.Is(err, common.ErrInvalidResetCode),
		errors.Is(err, common.ErrInvalidRole),
		errors.Is(err, common.ErrorValidation):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrMasterAdminImmutable),
		errors.Is(err, common.ErrorForbidden):
		writeDetail(w, http.StatusForbidden, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		writeDetail(w, http.StatusNotFound, "User not found")
	case errors.Is(err, common.ErrorAlreadyExists):
		writeDetail(w, http.StatusConflict, "User already exists")
	case errors.Is(err, common.ErrArchiveDisabled):
		writeDetail(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decode reads a JSON body of at most maxBodyBytes into dst.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", common.ErrorValidation)
	}
	return nil
}
