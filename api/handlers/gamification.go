package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/civicgrid/civic-issue-api/api"
	"github.com/civicgrid/civic-issue-api/api/engagement"
	"github.com/civicgrid/civic-issue-api/config"
	"github.com/civicgrid/civic-issue-api/databases"
	"github.com/civicgrid/civic-issue-api/models"
)

// Gamification serves the points, badges and leaderboard read APIs.
type Gamification struct {
	UDB databases.UserDatabase
	RDB databases.ReportDatabase
}

// BadgeCatalogHandler returns the static badge catalog.
func (g Gamification) BadgeCatalogHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, engagement.Badges)
}

type leaderboardEntry struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Points int            `json:"points"`
	Badges []models.Badge `json:"badges"`
}

// LeaderboardHandler returns the ten citizens with the most points.
func (g Gamification) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	opts := options.Find().
		SetSort(bson.D{{Key: "points", Value: -1}}).
		SetLimit(10)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	users, err := g.UDB.Find(ctx, bson.M{"role": models.RoleCitizen}, opts)
	if err != nil {
		domainError("failed to load leaderboard", w, err)
		return
	}

	entries := make([]leaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, leaderboardEntry{
			ID:     u.ID.Hex(),
			Name:   u.Name,
			Points: u.Points,
			Badges: u.Badges,
		})
	}
	respondJSON(w, http.StatusOK, entries)
}

type statsResponse struct {
	Points    int            `json:"points"`
	Badges    []models.Badge `json:"badges"`
	Submitted int64          `json:"submitted"`
	Resolved  int64          `json:"resolved"`
	Rank      int64          `json:"rank"`
}

// MyStatsHandler returns one citizen's points, badges, report counts and
// leaderboard rank.
func (g Gamification) MyStatsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := primitive.ObjectIDFromHex(mux.Vars(r)["user_id"])
	if err != nil {
		config.ErrorStatus("invalid user id", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	user, err := g.UDB.FindOne(ctx, bson.M{"_id": userID})
	if err != nil {
		domainError("user not found", w, models.ErrNotFound)
		return
	}

	submitted, err := g.RDB.CountDocuments(ctx, bson.M{"submittedBy": userID})
	if err != nil {
		domainError("failed to count reports", w, err)
		return
	}
	resolved, err := g.RDB.CountDocuments(ctx, bson.M{"submittedBy": userID, "status": models.StatusResolved})
	if err != nil {
		domainError("failed to count resolved reports", w, err)
		return
	}
	ahead, err := g.UDB.CountDocuments(ctx, bson.M{
		"role":   models.RoleCitizen,
		"points": bson.M{"$gt": user.Points},
	})
	if err != nil {
		domainError("failed to compute rank", w, err)
		return
	}

	respondJSON(w, http.StatusOK, statsResponse{
		Points:    user.Points,
		Badges:    user.Badges,
		Submitted: submitted,
		Resolved:  resolved,
		Rank:      ahead + 1,
	})
}
