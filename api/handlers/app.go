package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/civicgrid/civic-issue-api/api"
	"github.com/civicgrid/civic-issue-api/api/autoroute"
	"github.com/civicgrid/civic-issue-api/api/engagement"
	"github.com/civicgrid/civic-issue-api/api/lifecycle"
	"github.com/civicgrid/civic-issue-api/api/media"
	"github.com/civicgrid/civic-issue-api/api/notifier"
	"github.com/civicgrid/civic-issue-api/api/realtime"
	"github.com/civicgrid/civic-issue-api/api/scheduler"
	"github.com/civicgrid/civic-issue-api/config"
	"github.com/civicgrid/civic-issue-api/databases"
	"github.com/civicgrid/civic-issue-api/weather"
)

// App stores the router, db connection and background machinery, so it can
// be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	Scheduler *scheduler.Scheduler
	Hub       *realtime.Hub
	dbHelper  databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	// setup go-guardian for middleware
	m := api.MiddlewareDB{DB: databases.NewUserDatabase(a.dbHelper)}
	m.SetupGoGuardian()

	r := mux.NewRouter()

	rdb := databases.NewReportDatabase(a.dbHelper)
	udb := databases.NewUserDatabase(a.dbHelper)
	zdb := databases.NewZoneDatabase(a.dbHelper)
	ddb := databases.NewDepartmentDatabase(a.dbHelper)

	ledger := engagement.New(rdb, udb)
	engine := lifecycle.New(rdb, autoroute.New(zdb, ddb), ledger)
	engine.Notifier = notifier.New(udb, a.Config.SendgridKey)
	engine.Broadcast = a.Hub

	var mediaStore media.Store
	if cs, err := media.NewCloudinaryStore(a.Config.CloudinaryURL); err != nil {
		zap.S().Warnw("cloudinary unavailable, server-side uploads disabled", "error", err)
	} else {
		mediaStore = cs
	}

	report := Report{RDB: rdb, Engine: engine, Media: mediaStore}
	zone := Zone{ZDB: zdb, RDB: rdb}
	department := Department{DDB: ddb, ZDB: zdb}
	gamification := Gamification{UDB: udb, RDB: rdb}
	user := User{UDB: udb}
	weatherAlerts := Weather{Alerts: a.Scheduler.Alerts}
	admin := Admin{UDB: udb, JWTSecret: a.Config.JWTSecret}
	cloudinaryHandler := CloudinaryHandler{}

	adminOnly := func(h http.HandlerFunc) http.Handler {
		return api.AdminMiddleware(a.Config.JWTSecret, h)
	}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)
	r.HandleFunc("/ws", a.Hub.ServeWS)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	// The websocket route stays outside this subrouter so the timeout does
	// not tear down long-lived connections.
	apiCreate.Use(mux.MiddlewareFunc(api.TimeoutMiddleware(30 * time.Second)))

	apiCreate.Handle("/auth/token", http.HandlerFunc(m.CreateToken)).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(api.RevokeToken))).Methods("DELETE")
	apiCreate.Handle("/admin/login", http.HandlerFunc(admin.AdminLoginHandler)).Methods("POST")

	apiCreate.Handle("/user/create-user", http.HandlerFunc(user.UserCreateHandler)).Methods("POST")
	apiCreate.Handle("/users/{user_id}", api.Middleware(http.HandlerFunc(user.GetUserHandler))).Methods("GET")
	apiCreate.Handle("/users/{user_id}/push-token", api.Middleware(http.HandlerFunc(user.UpdatePushTokenHandler))).Methods("PUT")
	apiCreate.Handle("/users/{user_id}/reports", api.Middleware(http.HandlerFunc(report.MyReportsHandler))).Methods("GET")
	apiCreate.Handle("/users/{user_id}/stats", api.Middleware(http.HandlerFunc(gamification.MyStatsHandler))).Methods("GET")

	apiCreate.Handle("/reports", api.Middleware(http.HandlerFunc(report.CreateReportHandler))).Methods("POST")
	apiCreate.Handle("/reports/anonymous", http.HandlerFunc(report.CreateReportHandler)).Methods("POST")
	apiCreate.Handle("/reports/sync", api.Middleware(http.HandlerFunc(report.SyncReportsHandler))).Methods("POST")
	apiCreate.Handle("/reports/feed", http.HandlerFunc(report.FeedHandler)).Methods("GET")
	apiCreate.Handle("/reports/map", http.HandlerFunc(report.MapHandler)).Methods("GET")
	apiCreate.Handle("/reports", adminOnly(report.ListReportsHandler)).Methods("GET")
	apiCreate.Handle("/reports/{report_id}", api.Middleware(http.HandlerFunc(report.GetReportHandler))).Methods("GET")
	apiCreate.Handle("/reports/{report_id}/upvote", api.Middleware(http.HandlerFunc(report.UpvoteReportHandler))).Methods("POST")
	apiCreate.Handle("/reports/{report_id}/assign", adminOnly(report.AssignReportHandler)).Methods("POST")
	apiCreate.Handle("/reports/{report_id}/status", api.Middleware(http.HandlerFunc(report.UpdateStatusHandler))).Methods("PATCH")
	apiCreate.Handle("/reports/{report_id}/proof", api.Middleware(http.HandlerFunc(report.RecordProofHandler))).Methods("POST")
	apiCreate.Handle("/reports/{report_id}", adminOnly(report.UpdateDetailsHandler)).Methods("PATCH")

	apiCreate.Handle("/workers/{worker_id}/queue", api.Middleware(http.HandlerFunc(report.AssignedQueueHandler))).Methods("GET")

	apiCreate.Handle("/zones", adminOnly(zone.CreateZoneHandler)).Methods("POST")
	apiCreate.Handle("/zones", http.HandlerFunc(zone.ListZonesHandler)).Methods("GET")
	apiCreate.Handle("/zones/{zone_id}", http.HandlerFunc(zone.GetZoneHandler)).Methods("GET")

	apiCreate.Handle("/departments", adminOnly(department.CreateDepartmentHandler)).Methods("POST")
	apiCreate.Handle("/departments", http.HandlerFunc(department.ListDepartmentsHandler)).Methods("GET")
	apiCreate.Handle("/departments/{department_id}", adminOnly(department.UpdateDepartmentHandler)).Methods("PATCH")

	apiCreate.Handle("/gamification/badges", http.HandlerFunc(gamification.BadgeCatalogHandler)).Methods("GET")
	apiCreate.Handle("/gamification/leaderboard", http.HandlerFunc(gamification.LeaderboardHandler)).Methods("GET")

	apiCreate.Handle("/weather/alert", http.HandlerFunc(weatherAlerts.AlertStatusHandler)).Methods("GET")

	apiCreate.Handle("/generate-signature", api.Middleware(http.HandlerFunc(cloudinaryHandler.GenerateSignature))).Methods("POST")

	return r
}

// Initialize is invoked by main to connect with the database and create a
// router
func (a *App) Initialize() error {
	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("civic-issue-api has connected to the database")

	a.Hub = realtime.NewHub()
	a.Scheduler = scheduler.New(
		databases.NewReportDatabase(a.dbHelper),
		databases.NewSchedulerLockDatabase(a.dbHelper),
		weather.NewOpenWeather(a.Config.WeatherAPIKey),
	)

	a.initializeRoutes()
	return nil
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{"alive": true}`)
}
