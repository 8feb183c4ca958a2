package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/server/permissions"
	"github.com/dmitrijs2005/authgate/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code"`
}

type resetRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type message struct {
	Message string `json:"message"`
}

// liveness answers load balancer checks without touching any backend.
func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "authgate",
		"timestamp": s.clock.Now().UTC(),
	})
}

func (s *Server) authHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "authentication",
		"timestamp": s.clock.Now().UTC(),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeDetail(w, http.StatusBadRequest, "email and password are required")
		return
	}

	res, err := s.auth.Login(r.Context(), req.Email, req.Password, req.MFACode)
	if err != nil {
		s.metrics.Login("failure")
		s.writeError(w, r, err)
		return
	}
	if res.RequiresMFA {
		s.metrics.Login("mfa_required")
	} else {
		s.metrics.Login("success")
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	access, err := s.auth.Refresh(r.Context(), tokenFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": access, "token_type": services.TokenType})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u := UserFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        u.Public(),
		"permissions": permissions.Resolve(u),
	})
}

func (s *Server) verifyToken(w http.ResponseWriter, r *http.Request) {
	u := UserFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"user":  u.Public(),
	})
}

// logout is stateless: tokens stay valid until they expire.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.logger.Info(r.Context(), "logout", "email", UserFrom(r.Context()).Email)
	writeJSON(w, http.StatusOK, message{Message: "Logged out successfully"})
}

func (s *Server) createTempUser(w http.ResponseWriter, r *http.Request) {
	var req services.TempUserRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.auth.CreateTemporaryUser(r.Context(), req, UserFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	if err := services.RequireAdmin(UserFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}

	include, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))
	users := s.auth.ListUsers(r.Context(), include)
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "total": len(users)})
}

func pathEmail(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "email")
	email, err := url.PathUnescape(raw)
	if err != nil || email == "" {
		return "", fmt.Errorf("%w: invalid email in path", common.ErrorValidation)
	}
	return email, nil
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	email, err := pathEmail(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var upd services.UserUpdate
	if err := decode(w, r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.auth.UpdateUser(r.Context(), email, upd, UserFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "User updated", "user": u})
}

func (s *Server) deactivateUser(w http.ResponseWriter, r *http.Request) {
	email, err := pathEmail(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.auth.DeactivateUser(r.Context(), email, UserFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "User deactivated"})
}

// userPermissions is open to admins and to the user asking about themselves.
func (s *Server) userPermissions(w http.ResponseWriter, r *http.Request) {
	email, err := pathEmail(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	actor := UserFrom(r.Context())
	if !strings.EqualFold(actor.Email, email) {
		if err := services.RequireAdmin(actor); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	perms, err := s.auth.GetUserPermissions(r.Context(), email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) auditLogs(w http.ResponseWriter, r *http.Request) {
	if err := services.RequireMaster(UserFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}

	entries, err := s.auth.AuditLogs(r.Context(), queryLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries, "total": len(entries)})
}

func (s *Server) requestReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.auth.RequestPasswordReset(r.Context(), req.Email)
	writeJSON(w, http.StatusOK, message{Message: "If the account exists, a reset code has been sent"})
}

func (s *Server) verifyReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.auth.VerifyPasswordReset(r.Context(), req.Email, req.Code); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := s.auth.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			err = common.ErrInvalidResetCode
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Password has been reset"})
}
