package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/example/sems-monitoring/internal/account"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Success bool         `json:"success"`
	User    account.User `json:"user"`
	Token   string       `json:"token"`
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, s.accounts.SignUp, http.StatusCreated)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, s.accounts.SignIn, http.StatusOK)
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, email, password string) (account.User, error), okStatus int) {
	ctx := r.Context()
	var in credentials
	if err := decode(w, r, &in); err != nil {
		s.respondMsg(ctx, w, http.StatusBadRequest, "Invalid input provided.")
		return
	}
	u, err := op(ctx, in.Email, in.Password)
	if err != nil {
		if msg, ok := account.PublicMessage(err); ok {
			s.respondMsg(ctx, w, statusForAccountErr(err), msg)
			return
		}
		s.respondErr(ctx, w, http.StatusInternalServerError, "Something went wrong. Please try again.", err)
		return
	}
	token, err := s.tokens.Issue(u)
	if err != nil {
		s.respondErr(ctx, w, http.StatusInternalServerError, "Something went wrong. Please try again.", err)
		return
	}
	writeJSON(w, okStatus, sessionResponse{Success: true, User: u, Token: token})
}

func statusForAccountErr(err error) int {
	switch {
	case errors.Is(err, account.ErrExists):
		return http.StatusConflict
	case errors.Is(err, account.ErrInvalidCredentials), errors.Is(err, account.ErrInvalidAdmin):
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}
