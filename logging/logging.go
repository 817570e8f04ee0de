package logging

import "go.uber.org/zap"

// New builds the process logger for the given environment. Anything other
// than production or development gets the example logger, which keeps test
// output quiet.
func New(env string) (*zap.Logger, error) {
	switch env {
	case "production":
		return zap.NewProduction()
	case "development":
		return zap.NewDevelopment()
	default:
		return zap.NewExample(), nil
	}
}
