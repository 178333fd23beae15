// Command migrate applies or rolls back the embedded order receipt schema.
package main

import (
	"flag"
	"log"
	"strings"

	"github.com/noah-isme/candle-checkout/internal/config"
	"github.com/noah-isme/candle-checkout/internal/migrate"
)

func main() {
	down := flag.Bool("down", false, "roll back every migration instead of applying them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	if *down {
		if err := migrate.Down(cfg.DatabaseURL); err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		log.Println("migrations rolled back")
		return
	}
	if err := migrate.Up(cfg.DatabaseURL); err != nil {
		log.Fatalf("migrate up: %v", err)
	}
	log.Println("migrations applied")
}
