// Command seed loads demo events for local development and prints a
// ready-to-use admin bearer token.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/accessly-app/accessly/internal/auth"
	"github.com/accessly-app/accessly/internal/config"
	"github.com/accessly-app/accessly/internal/database"
	"github.com/accessly-app/accessly/internal/model"
	"github.com/accessly-app/accessly/internal/repository"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		zap.NewExample().Fatal("logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	pool, err := database.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	events := repository.NewEventRepository(pool)
	now := time.Now().UTC()

	demo := []model.Event{
		{
			Title:       "Tech Conference 2026",
			Description: "Join us for the biggest technology conference of the year",
			Location:    "Convention Center",
			StartTime:   now.AddDate(0, 1, 0),
			Capacity:    500,
		},
		{
			Title:       "Academic Symposium",
			Description: "A gathering of academics and researchers",
			Location:    "University Hall",
			StartTime:   now.AddDate(0, 2, 0),
			Capacity:    300,
		},
		{
			Title:       "Summer Music Festival",
			Description: "Enjoy a night of music and entertainment",
			Location:    "City Park",
			StartTime:   now.AddDate(0, 3, 0),
			Capacity:    1000,
		},
	}

	for i := range demo {
		demo[i].ID = uuid.New().String()
		demo[i].EndTime = demo[i].StartTime.Add(8 * time.Hour)
		demo[i].CreatedAt = now
		if err := events.Create(ctx, &demo[i]); err != nil {
			log.Fatal("seed event", zap.String("title", demo[i].Title), zap.Error(err))
		}
		log.Info("seeded event", zap.String("id", demo[i].ID), zap.String("title", demo[i].Title))
	}

	token, err := auth.MintToken(cfg.JWT.Secret, cfg.JWT.Issuer, "demo-admin", model.RoleAdmin, cfg.JWT.TokenTTL, now)
	if err != nil {
		log.Fatal("mint token", zap.Error(err))
	}
	fmt.Printf("admin token:\n%s\n", token)
}
