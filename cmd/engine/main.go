package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/palmsestate/palms/internal/engine/app"
)

func main() {
	// Missing .env is fine; env vars win either way.
	_ = godotenv.Load()

	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
