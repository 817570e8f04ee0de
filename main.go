package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/civicgrid/civic-issue-api/api/handlers"
	"github.com/civicgrid/civic-issue-api/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		zap.S().Debugw("no .env file found, using environment")
	}

	a := handlers.App{}
	a.Config = *config.New()

	if err := a.Initialize(); err != nil { //initialize database and router
		log.Fatal(err)
	}

	if err := a.Scheduler.Start(); err != nil {
		log.Fatal(err)
	}
	defer a.Scheduler.Stop()

	zap.S().Infow("civic-issue-api is up and running",
		"port", a.Config.Port,
		"url", a.Config.BaseURL,
	)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%v", a.Config.Port), a.Router))
}
