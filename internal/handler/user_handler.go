package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/service"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

type CreateUserRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	IsActive *bool  `json:"is_active,omitempty"`
}

type UpdateUserRequest struct {
	UserName *string `json:"user_name,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type LoginRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.userService.CreateUser(r.Context(), &service.CreateUserRequest{
		UserName: req.UserName,
		Password: req.Password,
		Role:     domain.Role(req.Role),
		Email:    req.Email,
		Phone:    req.Phone,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	patch := &service.UpdateUserRequest{
		UserName: req.UserName,
		Password: req.Password,
		Email:    req.Email,
		Phone:    req.Phone,
		IsActive: req.IsActive,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		patch.Role = &role
	}

	user, err := h.userService.UpdateUser(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	removed, err := h.userService.DeleteUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (h *UserHandler) ToggleUserStatus(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.ToggleUserStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UserStats serves GET /users/stats
func (h *UserHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.userService.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// CheckAvailability serves GET /users/exists?username=&email=&exclude_id=
func (h *UserHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	excludeID := params.Get("exclude_id")
	result := map[string]bool{}

	if name := params.Get("username"); name != "" {
		exists, err := h.userService.UsernameExists(r.Context(), name, excludeID)
		if err != nil {
			writeError(w, err)
			return
		}
		result["username_exists"] = exists
	}
	if email := params.Get("email"); email != "" {
		exists, err := h.userService.EmailExists(r.Context(), email, excludeID)
		if err != nil {
			writeError(w, err)
			return
		}
		result["email_exists"] = exists
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.UserName, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
