package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/livebell/engine/internal/server"
	"github.com/livebell/engine/internal/server/config"
)

func main() {

	ctx := context.Background()

	// Optional .env for local runs; real deployments set the environment.
	_ = godotenv.Load()

	cfg := config.LoadConfig()
	app, err := server.NewApp(cfg, nil)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
