package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dharsanguruparan/filevault/internal/auth"
	"github.com/dharsanguruparan/filevault/internal/model"
	"github.com/dharsanguruparan/filevault/internal/users"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type createUserRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=6"`
	Role         string `json:"role"`
	DepartmentID *int64 `json:"department_id"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// decodeJSON decodes and validates a request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 64*1024))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		return badRequest(err.Error())
	}
	return nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	token, _, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, _ := auth.UserFrom(r.Context())
	created, err := s.users.Create(r.Context(), u.Actor(), users.NewUser{
		Email:        req.Email,
		Password:     req.Password,
		Role:         req.Role,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, _ := auth.UserFrom(r.Context())
	got, err := s.users.Get(r.Context(), u.Actor(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, got)
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req changeRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, _ := auth.UserFrom(r.Context())
	updated, err := s.users.ChangeRole(r.Context(), u.Actor(), id, req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	dept, err := optionalInt(r.URL.Query(), "department_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, _ := auth.UserFrom(r.Context())
	list, err := s.users.List(r.Context(), u.Actor(), dept)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*model.User{}
	}
	respondJSON(w, http.StatusOK, list)
}
