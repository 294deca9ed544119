package web

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"

	"github.com/hurl365/rest-db-starter/models"
	"github.com/hurl365/rest-db-starter/repo"
)

type CreateUserRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

// UpdateUserRequest is not validated here: the store rejects empty names and
// the client gets {"success": false}.
type UpdateUserRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type UsersResponse struct {
	Users []models.User `json:"users"`
}

type UserHandler struct {
	store    repo.UserStore
	validate *validator.Validate
	home     *template.Template
}

func NewUserHandler(store repo.UserStore) *UserHandler {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return &UserHandler{
		store:    store,
		validate: validate,
		home:     template.Must(template.ParseFS(assets, "views/index.html")),
	}
}

func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Get("/", h.handleHome)
	router.Get("/users", h.handleListUsers)
	router.Get("/users/{id}", h.handleGetUser)
	router.Post("/users", h.handleCreateUser)
	router.Put("/users/{id}", h.handleUpdateUser)
	router.Delete("/users/{id}", h.handleDeleteUser)
}

func (h *UserHandler) handleHome(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.Read(r.Context(), nil)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to read users for home page")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.home.Execute(w, struct{ Users []models.User }{users}); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to render home page")
	}
}

func (h *UserHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.Read(r.Context(), nil)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to list users")
	}
	respondWithJSON(w, r, http.StatusOK, UsersResponse{Users: users})
}

func (h *UserHandler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	users, err := h.store.Read(r.Context(), &id)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("user_id", id).Msg("Failed to get user by id")
	}
	respondWithJSON(w, r, http.StatusOK, users)
}

func (h *UserHandler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&requestPayload); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Failed to decode request body")
		respondWithError(w, r, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, r, http.StatusBadRequest, errorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("Unexpected error during validation")
		respondWithError(w, r, http.StatusInternalServerError, "Internal validation error")
		return
	}

	created, err := h.store.Create(r.Context(), models.CreateUserParams{
		FirstName: requestPayload.FirstName,
		LastName:  requestPayload.LastName,
	})
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to create user")
		respondWithError(w, r, http.StatusInternalServerError, "Failed to create user")
		return
	}

	respondWithJSON(w, r, http.StatusCreated, created)
}

func (h *UserHandler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var requestPayload UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&requestPayload); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Failed to decode request body")
		respondWithError(w, r, http.StatusBadRequest, "Invalid request payload")
		return
	}

	updated, err := h.store.Update(r.Context(), models.UpdateUserParams{
		ID:        id,
		FirstName: requestPayload.FirstName,
		LastName:  requestPayload.LastName,
	})
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("user_id", id).Msg("Failed to update user")
	}
	respondWithJSON(w, r, http.StatusOK, successResponse{Success: updated})
}

func (h *UserHandler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	deleted, err := h.store.Delete(r.Context(), id)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("user_id", id).Msg("Failed to delete user")
	}
	respondWithJSON(w, r, http.StatusOK, successResponse{Success: deleted})
}

// userID parses the {id} URL parameter, writing a 400 response when it is not
// an integer.
func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idParam := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("user_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, r, http.StatusBadRequest, "Invalid id parameter")
		return 0, false
	}
	return id, true
}
