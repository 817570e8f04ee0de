// Package scheduler runs the background escalation jobs: an hourly SLA scan
// that promotes stale reports to Critical, and a six-hourly weather scan that
// raises rain-sensitive categories when rain is forecast. Jobs are guarded
// against overlap within the process by the cron chain and across processes
// by a database lock.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/civicgrid/civic-issue-api/databases"
	"github.com/civicgrid/civic-issue-api/models"
	"github.com/civicgrid/civic-issue-api/weather"
)

const (
	slaJobName     = "sla-escalation"
	weatherJobName = "weather-escalation"

	slaSchedule     = "0 * * * *"
	weatherSchedule = "0 */6 * * *"

	// slaThreshold is how long a report may sit in a non-terminal state
	// below Critical before it is escalated.
	slaThreshold = 72 * time.Hour

	// forecastWindow is how many forecast samples count toward a rain
	// decision.
	forecastWindow = 8

	jobTimeout = 5 * time.Minute
	lockTTL    = 10 * time.Minute
)

// rainCategories are the categories rain makes worse.
var rainCategories = []string{"Pothole", "Drainage"}

// SLAScanResult summarizes one SLA escalation run.
type SLAScanResult struct {
	Escalated int64
	Threshold time.Time
}

// WeatherScanResult summarizes one weather escalation run.
type WeatherScanResult struct {
	CitiesScanned int
	RainCities    []string
	FailedCities  []string
	Escalated     int64
}

// Scheduler owns the cron runner and the escalation scan logic.
type Scheduler struct {
	RDB     databases.ReportDatabase
	Locks   databases.SchedulerLockDatabase
	Weather weather.Provider
	Alerts  *AlertState

	instanceID string
	cron       *cron.Cron
}

// New creates a Scheduler. The alert state it returns the scans' rain
// verdict through is reachable via Alerts.
func New(rdb databases.ReportDatabase, locks databases.SchedulerLockDatabase, provider weather.Provider) *Scheduler {
	return &Scheduler{
		RDB:        rdb,
		Locks:      locks,
		Weather:    provider,
		Alerts:     NewAlertState(),
		instanceID: uuid.New().String(),
	}
}

// Start registers both jobs and starts the cron runner. The weather scan
// also fires once immediately so the alert flag is populated without waiting
// for the first tick.
func (s *Scheduler) Start() error {
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	if _, err := s.cron.AddFunc(slaSchedule, func() {
		s.runLocked(slaJobName, func(ctx context.Context) {
			if res, err := s.RunSLAScan(ctx, time.Now().UTC()); err != nil {
				zap.S().Errorw("sla scan failed", "error", err)
			} else if res.Escalated > 0 {
				zap.S().Infow("sla scan escalated reports", "count", res.Escalated)
			}
		})
	}); err != nil {
		return err
	}

	weatherJob := func() {
		s.runLocked(weatherJobName, func(ctx context.Context) {
			res, err := s.RunWeatherScan(ctx, time.Now().UTC())
			if err != nil {
				zap.S().Errorw("weather scan failed", "error", err)
				return
			}
			zap.S().Infow("weather scan finished",
				"cities", res.CitiesScanned, "rainCities", res.RainCities,
				"failedCities", res.FailedCities, "escalated", res.Escalated)
		})
	}
	if _, err := s.cron.AddFunc(weatherSchedule, weatherJob); err != nil {
		return err
	}

	s.cron.Start()
	go weatherJob()

	zap.S().Infow("escalation scheduler started", "instanceId", s.instanceID)
	return nil
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	zap.S().Infow("escalation scheduler stopped", "instanceId", s.instanceID)
}

// runLocked executes fn only if this instance holds the job's database
// lock, so one scan per job runs across the whole deployment.
func (s *Scheduler) runLocked(jobName string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	acquired, err := s.Locks.TryAcquireLock(ctx, jobName, s.instanceID, lockTTL)
	if err != nil {
		zap.S().Errorw("failed to acquire job lock", "job", jobName, "error", err)
		return
	}
	if !acquired {
		zap.S().Debugw("job lock held elsewhere, skipping", "job", jobName)
		return
	}
	defer func() {
		if err := s.Locks.ReleaseLock(ctx, jobName, s.instanceID); err != nil {
			zap.S().Errorw("failed to release job lock", "job", jobName, "error", err)
		}
	}()

	fn(ctx)
}

// RunSLAScan escalates every report older than the SLA threshold that is
// neither terminal nor already Critical. The whole scan is one conditional
// bulk write, so a report resolved between read and write cannot be
// escalated, and no history entries are appended. Re-running against
// unchanged data matches nothing.
func (s *Scheduler) RunSLAScan(ctx context.Context, now time.Time) (SLAScanResult, error) {
	threshold := now.Add(-slaThreshold)

	res, err := s.RDB.UpdateMany(ctx,
		bson.M{
			"createdAt": bson.M{"$lte": primitive.NewDateTimeFromTime(threshold)},
			"status":    bson.M{"$nin": models.TerminalStatuses},
			"priority":  bson.M{"$lt": models.PriorityCritical},
		},
		bson.M{"$set": bson.M{
			"priority":  models.PriorityCritical,
			"updatedAt": primitive.NewDateTimeFromTime(now),
		}},
	)
	if err != nil {
		return SLAScanResult{}, err
	}
	return SLAScanResult{Escalated: res.ModifiedCount, Threshold: threshold}, nil
}

// RunWeatherScan checks the forecast for every city with active reports and
// raises Low and Medium reports in rain-sensitive categories to High where
// rain is expected. One city's forecast failure never blocks the others.
// The process-wide alert flag is overwritten with this run's verdict.
func (s *Scheduler) RunWeatherScan(ctx context.Context, now time.Time) (WeatherScanResult, error) {
	cities, err := s.RDB.Distinct(ctx, "address.city",
		bson.M{"status": bson.M{"$nin": models.TerminalStatuses}})
	if err != nil {
		return WeatherScanResult{}, err
	}

	var result WeatherScanResult
	for _, raw := range cities {
		city, ok := raw.(string)
		if !ok || city == "" {
			continue
		}
		result.CitiesScanned++

		samples, err := s.Weather.Forecast(ctx, city)
		if err != nil {
			result.FailedCities = append(result.FailedCities, city)
			zap.S().Warnw("forecast unavailable", "city", city, "error", err)
			continue
		}
		if !weather.RainExpected(samples, forecastWindow) {
			continue
		}
		result.RainCities = append(result.RainCities, city)

		res, err := s.RDB.UpdateMany(ctx,
			bson.M{
				"address.city": city,
				"category":     bson.M{"$in": rainCategories},
				"status":       bson.M{"$nin": models.TerminalStatuses},
				"priority":     bson.M{"$lt": models.PriorityHigh},
			},
			bson.M{"$set": bson.M{
				"priority":  models.PriorityHigh,
				"updatedAt": primitive.NewDateTimeFromTime(now),
			}},
		)
		if err != nil {
			result.FailedCities = append(result.FailedCities, city)
			zap.S().Errorw("weather escalation write failed", "city", city, "error", err)
			continue
		}
		result.Escalated += res.ModifiedCount
	}

	if len(result.RainCities) > 0 {
		s.Alerts.Set(result.RainCities, now)
	} else {
		s.Alerts.Clear(now)
	}
	return result, nil
}
