package config

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/civicgrid/civic-issue-api/logging"
)

// Config holds the project config values
type Config struct {
	URL           string
	DatabaseName  string
	BaseURL       string
	Port          string
	Environment   string
	JWTSecret     string
	WeatherAPIKey string
	CloudinaryURL string
	SendgridKey   string
}

// New sets up all config related services
func New() *Config {

	env := os.Getenv("ENVIRONMENT")

	//setup zap logger and replace default logger
	logger, err := logging.New(env)
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	return &Config{
		URL:           os.Getenv("DB_URI"),
		DatabaseName:  os.Getenv("DB_NAME"),
		BaseURL:       os.Getenv("BASE_URL"),
		Port:          os.Getenv("PORT"),
		Environment:   env,
		JWTSecret:     os.Getenv("JWT_SECRET"),
		WeatherAPIKey: os.Getenv("WEATHER_API_KEY"),
		CloudinaryURL: os.Getenv("CLOUDINARY_URL"),
		SendgridKey:   os.Getenv("SENDGRID_API_KEY"),
	}

}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().With(err).Error(message)
	w.WriteHeader(httpStatusCode)
	w.Write([]byte(fmt.Sprintf(`{"response": "%s, %v"}`, message, err)))
	return
}
