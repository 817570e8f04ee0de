package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/civicgrid/civic-issue-api/api"
	"github.com/civicgrid/civic-issue-api/config"
	"github.com/civicgrid/civic-issue-api/databases"
	"github.com/civicgrid/civic-issue-api/models"
)

// User handles user-related requests
type User struct {
	UDB databases.UserDatabase
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UserCreateHandler registers a new user with a bcrypt-hashed password.
func (u User) UserCreateHandler(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		config.ErrorStatus("name, email and password required", http.StatusBadRequest, w, models.ErrInvalidInput)
		return
	}

	role := models.Role(req.Role)
	if role == "" {
		role = models.RoleCitizen
	}
	switch role {
	case models.RoleCitizen, models.RoleWorker, models.RoleSubhead:
	default:
		config.ErrorStatus("role not allowed", http.StatusBadRequest, w, models.ErrInvalidInput)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	count, err := u.UDB.CountDocuments(ctx, bson.M{"email": req.Email})
	if err != nil {
		domainError("failed to check email", w, err)
		return
	}
	if count > 0 {
		config.ErrorStatus("email already registered", http.StatusConflict, w, models.ErrInvalidInput)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		config.ErrorStatus("failed to hash password", http.StatusInternalServerError, w, err)
		return
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	user := models.User{
		ID:        primitive.NewObjectID(),
		Name:      strings.TrimSpace(req.Name),
		Email:     req.Email,
		Password:  string(hash),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := u.UDB.InsertOne(ctx, user); err != nil {
		domainError("failed to create user", w, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// GetUserHandler returns one user.
func (u User) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["user_id"])
	if err != nil {
		config.ErrorStatus("invalid user id", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	user, err := u.UDB.FindOne(ctx, bson.M{"_id": id})
	if err != nil {
		domainError("user not found", w, models.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type pushTokenRequest struct {
	PushToken string `json:"pushToken"`
}

// UpdatePushTokenHandler stores the user's Expo push token.
func (u User) UpdatePushTokenHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["user_id"])
	if err != nil {
		config.ErrorStatus("invalid user id", http.StatusBadRequest, w, err)
		return
	}

	var req pushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := u.UDB.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"pushToken": req.PushToken,
		"updatedAt": primitive.NewDateTimeFromTime(time.Now()),
	}})
	if err != nil {
		domainError("failed to update push token", w, err)
		return
	}
	if res.MatchedCount == 0 {
		domainError("user not found", w, models.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "push token updated"})
}
