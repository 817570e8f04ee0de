package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/civicgrid/civic-issue-api/api"
	"github.com/civicgrid/civic-issue-api/api/lifecycle"
	"github.com/civicgrid/civic-issue-api/api/media"
	"github.com/civicgrid/civic-issue-api/config"
	"github.com/civicgrid/civic-issue-api/databases"
	"github.com/civicgrid/civic-issue-api/models"
)

// maxUploadSize caps report image uploads at 10 MB.
const maxUploadSize = 10 << 20

// Report handles report-related requests
type Report struct {
	RDB    databases.ReportDatabase
	Engine *lifecycle.Engine
	Media  media.Store
}

type intakeRequest struct {
	SubmittedBy         string          `json:"submittedBy"`
	IsAnonymous         bool            `json:"isAnonymous"`
	ClientRef           string          `json:"clientRef"`
	Description         string          `json:"description"`
	Category            string          `json:"category"`
	Location            models.GeoPoint `json:"location"`
	Address             models.Address  `json:"address"`
	ImageURL            string          `json:"imageUrl"`
	AIAnalyzed          bool            `json:"aiAnalyzed"`
	AIPredictedCategory string          `json:"aiPredictedCategory"`
	AISource            string          `json:"aiSource"`
	AIConfidence        float64         `json:"aiConfidence"`
}

func (req intakeRequest) toInput() (lifecycle.IntakeInput, error) {
	in := lifecycle.IntakeInput{
		IsAnonymous:         req.IsAnonymous,
		ClientRef:           req.ClientRef,
		Description:         req.Description,
		Category:            req.Category,
		Location:            req.Location,
		Address:             req.Address,
		ImageURL:            req.ImageURL,
		AIAnalyzed:          req.AIAnalyzed,
		AIPredictedCategory: req.AIPredictedCategory,
		AISource:            req.AISource,
		AIConfidence:        req.AIConfidence,
	}
	if req.SubmittedBy != "" {
		id, err := primitive.ObjectIDFromHex(req.SubmittedBy)
		if err != nil {
			return in, err
		}
		in.SubmittedBy = &id
	}
	return in, nil
}

// CreateReportHandler creates a new report. It accepts either a JSON body
// with an already-hosted image URL, or a multipart form with a "payload"
// JSON part and an "image" file part that gets uploaded first.
func (re Report) CreateReportHandler(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			config.ErrorStatus("failed to parse multipart form", http.StatusBadRequest, w, err)
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("payload")), &req); err != nil {
			config.ErrorStatus("failed to decode payload", http.StatusBadRequest, w, err)
			return
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			config.ErrorStatus("image file required", http.StatusBadRequest, w, err)
			return
		}
		defer file.Close()

		if re.Media == nil {
			config.ErrorStatus("image uploads unavailable", http.StatusServiceUnavailable, w, models.ErrExternalDependency)
			return
		}
		url, err := re.Media.Upload(r.Context(), file, "reports")
		if err != nil {
			domainError("failed to upload image", w, err)
			return
		}
		req.ImageURL = url
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
			return
		}
	}

	in, err := req.toInput()
	if err != nil {
		config.ErrorStatus("invalid submitter id", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := re.Engine.Intake(ctx, in)
	if err != nil {
		domainError("failed to create report", w, err)
		return
	}
	respondJSON(w, http.StatusCreated, report)
}

type syncRequest struct {
	Reports []intakeRequest `json:"reports"`
}

type syncResult struct {
	ClientRef string         `json:"clientRef"`
	Report    *models.Report `json:"report,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type syncResponse struct {
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Results    []syncResult `json:"results"`
}

// SyncReportsHandler replays reports captured offline. Every item must carry
// a clientRef so replays of the same batch cannot create duplicates. Items
// fail independently.
func (re Report) SyncReportsHandler(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	results := make([]syncResult, 0, len(req.Reports))
	for _, item := range req.Reports {
		result := syncResult{ClientRef: item.ClientRef}
		if item.ClientRef == "" {
			result.Error = "clientRef required"
			results = append(results, result)
			continue
		}
		in, err := item.toInput()
		if err != nil {
			result.Error = "invalid submitter id"
			results = append(results, result)
			continue
		}
		report, err := re.Engine.Intake(ctx, in)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Report = report
		}
		results = append(results, result)
	}

	resp := syncResponse{Results: results}
	for _, res := range results {
		if res.Error == "" {
			resp.Successful++
		} else {
			resp.Failed++
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetReportHandler returns one report with its full history.
func (re Report) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["report_id"])
	if err != nil {
		config.ErrorStatus("invalid report id", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := re.RDB.FindOne(ctx, bson.M{"_id": id})
	if err != nil {
		domainError("failed to get report", w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// FeedHandler returns the public report feed, paginated. Default order is
// newest first; ?sort=popular orders by upvote count instead.
func (re Report) FeedHandler(w http.ResponseWriter, r *http.Request) {
	limit, page := pagination(r)
	sort := bson.D{{Key: "createdAt", Value: -1}}
	if r.URL.Query().Get("sort") == "popular" {
		sort = bson.D{{Key: "upvotes", Value: -1}, {Key: "createdAt", Value: -1}}
	}
	opts := databases.PaginatedOpts(limit, page).SetSort(sort)

	filter := bson.M{}
	if category := r.URL.Query().Get("category"); category != "" {
		filter["category"] = category
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	reports, err := re.RDB.Find(ctx, filter, opts)
	if err != nil {
		domainError("failed to load feed", w, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

// MapHandler returns the reports inside a bounding box for map display.
func (re Report) MapHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minLon, err1 := strconv.ParseFloat(q.Get("minLon"), 64)
	minLat, err2 := strconv.ParseFloat(q.Get("minLat"), 64)
	maxLon, err3 := strconv.ParseFloat(q.Get("maxLon"), 64)
	maxLat, err4 := strconv.ParseFloat(q.Get("maxLat"), 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		config.ErrorStatus("bounding box params required", http.StatusBadRequest, w, models.ErrInvalidInput)
		return
	}

	filter := bson.M{
		"location": bson.M{
			"$geoWithin": bson.M{
				"$box": bson.A{
					bson.A{minLon, minLat},
					bson.A{maxLon, maxLat},
				},
			},
		},
		"status": bson.M{"$ne": models.StatusResolved},
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	reports, err := re.RDB.Find(ctx, filter, options.Find().SetLimit(200))
	if err != nil {
		domainError("failed to load map reports", w, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

// MyReportsHandler returns the reports a citizen has submitted.
func (re Report) MyReportsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := primitive.ObjectIDFromHex(mux.Vars(r)["user_id"])
	if err != nil {
		config.ErrorStatus("invalid user id", http.StatusBadRequest, w, err)
		return
	}

	limit, page := pagination(r)
	opts := databases.PaginatedOpts(limit, page).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	reports, err := re.RDB.Find(ctx, bson.M{"submittedBy": userID}, opts)
	if err != nil {
		domainError("failed to load reports", w, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

// AssignedQueueHandler returns a worker's open queue, most urgent first.
func (re Report) AssignedQueueHandler(w http.ResponseWriter, r *http.Request) {
	workerID, err := primitive.ObjectIDFromHex(mux.Vars(r)["worker_id"])
	if err != nil {
		config.ErrorStatus("invalid worker id", http.StatusBadRequest, w, err)
		return
	}

	filter := bson.M{
		"assignedWorker": workerID,
		"status":         bson.M{"$nin": models.TerminalStatuses},
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "priority", Value: -1},
		{Key: "createdAt", Value: 1},
	})

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	reports, err := re.RDB.Find(ctx, filter, opts)
	if err != nil {
		domainError("failed to load queue", w, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

// ListReportsHandler is the administrative listing with field filters.
func (re Report) ListReportsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := bson.M{}
	if status := q.Get("status"); status != "" {
		filter["status"] = models.Status(status)
	}
	if category := q.Get("category"); category != "" {
		filter["category"] = category
	}
	if priority := q.Get("priority"); priority != "" {
		p, err := models.ParsePriority(priority)
		if err != nil {
			config.ErrorStatus("invalid priority", http.StatusBadRequest, w, err)
			return
		}
		filter["priority"] = p
	}
	if zone := q.Get("zone"); zone != "" {
		id, err := primitive.ObjectIDFromHex(zone)
		if err != nil {
			config.ErrorStatus("invalid zone id", http.StatusBadRequest, w, err)
			return
		}
		filter["zone"] = id
	}
	if dept := q.Get("department"); dept != "" {
		id, err := primitive.ObjectIDFromHex(dept)
		if err != nil {
			config.ErrorStatus("invalid department id", http.StatusBadRequest, w, err)
			return
		}
		filter["assignedDepartment"] = id
	}

	limit, page := pagination(r)
	opts := databases.PaginatedOpts(limit, page).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	reports, err := re.RDB.Find(ctx, filter, opts)
	if err != nil {
		domainError("failed to list reports", w, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

type upvoteRequest struct {
	UserID string `json:"userId"`
}

// UpvoteReportHandler records one user's upvote on a report.
func (re Report) UpvoteReportHandler(w http.ResponseWriter, r *http.Request) {
	reportID, err := primitive.ObjectIDFromHex(mux.Vars(r)["report_id"])
	if err != nil {
		config.ErrorStatus("invalid report id", http.StatusBadRequest, w, err)
		return
	}

	var req upvoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		config.ErrorStatus("invalid user id", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := re.Engine.Ledger.Upvote(ctx, reportID, userID)
	if err != nil {
		domainError("failed to upvote report", w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type assignRequest struct {
	ActorID      string `json:"actorId"`
	DepartmentID string `json:"departmentId"`
	WorkerID     string `json:"workerId"`
}

// AssignReportHandler routes a report to a department or a worker.
func (re Report) AssignReportHandler(w http.ResponseWriter, r *http.Request) {
	reportID, err := primitive.ObjectIDFromHex(mux.Vars(r)["report_id"])
	if err != nil {
		config.ErrorStatus("invalid report id", http.StatusBadRequest, w, err)
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	actor, err := actorFromRequest(req.ActorID)
	if err != nil {
		config.ErrorStatus("invalid actor id", http.StatusBadRequest, w, err)
		return
	}

	var departmentID, workerID *primitive.ObjectID
	if req.DepartmentID != "" {
		id, err := primitive.ObjectIDFromHex(req.DepartmentID)
		if err != nil {
			config.ErrorStatus("invalid department id", http.StatusBadRequest, w, err)
			return
		}
		departmentID = &id
	}
	if req.WorkerID != "" {
		id, err := primitive.ObjectIDFromHex(req.WorkerID)
		if err != nil {
			config.ErrorStatus("invalid worker id", http.StatusBadRequest, w, err)
			return
		}
		workerID = &id
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := re.Engine.Assign(ctx, reportID, actor, departmentID, workerID)
	if err != nil {
		domainError("failed to assign report", w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type statusRequest struct {
	ActorID string `json:"actorId"`
	Status  string `json:"status"`
	Notes   string `json:"notes"`
}

// UpdateStatusHandler moves a report through its lifecycle.
func (re Report) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	reportID, err := primitive.ObjectIDFromHex(mux.Vars(r)["report_id"])
	if err != nil {
		config.ErrorStatus("invalid report id", http.StatusBadRequest, w, err)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	actor, err := actorFromRequest(req.ActorID)
	if err != nil {
		config.ErrorStatus("invalid actor id", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := re.Engine.UpdateStatus(ctx, reportID, actor, models.Status(req.Status), req.Notes)
	if err != nil {
		domainError("failed to update report status", w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// RecordProofHandler resolves a report with a proof-of-work photo. Accepts
// multipart with an "image" part, or JSON with a proofImageUrl.
func (re Report) RecordProofHandler(w http.ResponseWriter, r *http.Request) {
	reportID, err := primitive.ObjectIDFromHex(mux.Vars(r)["report_id"])
	if err != nil {
		config.ErrorStatus("invalid report id", http.StatusBadRequest, w, err)
		return
	}

	var actorID, proofURL, notes string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			config.ErrorStatus("failed to parse multipart form", http.StatusBadRequest, w, err)
			return
		}
		actorID = r.FormValue("actorId")
		notes = r.FormValue("notes")

		file, _, err := r.FormFile("image")
		if err != nil {
			config.ErrorStatus("proof image required", http.StatusBadRequest, w, err)
			return
		}
		defer file.Close()

		if re.Media == nil {
			config.ErrorStatus("image uploads unavailable", http.StatusServiceUnavailable, w, models.ErrExternalDependency)
			return
		}
		proofURL, err = re.Media.Upload(r.Context(), file, "proofs")
		if err != nil {
			domainError("failed to upload proof image", w, err)
			return
		}
	} else {
		var req struct {
			ActorID       string `json:"actorId"`
			ProofImageURL string `json:"proofImageUrl"`
			Notes         string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
			return
		}
		actorID, proofURL, notes = req.ActorID, req.ProofImageURL, req.Notes
	}

	actor, err := actorFromRequest(actorID)
	if err != nil {
		config.ErrorStatus("invalid actor id", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := re.Engine.RecordProof(ctx, reportID, actor, proofURL, notes)
	if err != nil {
		domainError("failed to record proof", w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type detailsRequest struct {
	ActorID         string   `json:"actorId"`
	FundsAllocated  *float64 `json:"fundsAllocated"`
	Priority        *string  `json:"priority"`
	RejectionReason *string  `json:"rejectionReason"`
}

// UpdateDetailsHandler changes a report's administrative fields.
func (re Report) UpdateDetailsHandler(w http.ResponseWriter, r *http.Request) {
	reportID, err := primitive.ObjectIDFromHex(mux.Vars(r)["report_id"])
	if err != nil {
		config.ErrorStatus("invalid report id", http.StatusBadRequest, w, err)
		return
	}

	var req detailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	update := lifecycle.DetailUpdate{
		FundsAllocated:  req.FundsAllocated,
		RejectionReason: req.RejectionReason,
	}
	if req.Priority != nil {
		p, err := models.ParsePriority(*req.Priority)
		if err != nil {
			config.ErrorStatus("invalid priority", http.StatusBadRequest, w, err)
			return
		}
		update.Priority = &p
	}

	actor, err := actorFromRequest(req.ActorID)
	if err != nil {
		config.ErrorStatus("invalid actor id", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := re.Engine.UpdateDetails(ctx, reportID, actor, update)
	if err != nil {
		domainError("failed to update report details", w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// actorFromRequest builds the history actor: an explicit user id, or the
// system actor when blank.
func actorFromRequest(actorID string) (models.Actor, error) {
	if actorID == "" {
		return models.SystemActor(), nil
	}
	id, err := primitive.ObjectIDFromHex(actorID)
	if err != nil {
		return models.Actor{}, err
	}
	return models.UserActor(id), nil
}
