package main

import (
	"github.com/smba11/imposter-online/internal/api/http"
	"github.com/smba11/imposter-online/internal/config"
	"github.com/smba11/imposter-online/internal/logger"
	"github.com/smba11/imposter-online/internal/service"
	"github.com/smba11/imposter-online/internal/state"

	"github.com/joho/godotenv"
)

func main() {
	// Optional .env, loaded before viper reads the environment.
	godotenv.Load()

	cfg := config.InitConfig()

	logger.InitLogger(cfg.LogLevel)

	appState := state.NewAppState(
		cfg,
		service.NewRoomService(cfg),
	)

	http.RunServer(appState)
}
