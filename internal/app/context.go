package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"factoryline/internal/config"
	"factoryline/internal/domain"
	"factoryline/internal/repo"
)

// ResolvePlantAndConfig picks the active plant and ensures a plant + config
// exist in the database, seeding defaults if missing. It prefers the
// override, then the single-plant database. A missing plant is created on
// the fly.
func ResolvePlantAndConfig(ctx context.Context, plantOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	plantID := plantOverride
	if plantID == "" {
		if p, err := r.SinglePlant(ctx); err == nil {
			plantID = p.ID
		} else {
			return "", nil, fmt.Errorf("plant not specified; use --plant")
		}
	}
	seedCfg := config.Default(plantID)

	if _, err := r.GetPlant(ctx, plantID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createPlant(ctx, r, plantID, seedCfg); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetPlantConfig(ctx, plantID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertPlantConfig(ctx, plantID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed plant config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Plant.ID = plantID
	return plantID, cfg, nil
}

// createPlant inserts a minimal plant footprint using the seed config.
func createPlant(ctx context.Context, r repo.Repo, plantID string, seedCfg *config.Config) error {
	if seedCfg == nil {
		seedCfg = config.Default(plantID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p := domain.Plant{
		ID:        plantID,
		Name:      seedCfg.Plant.Name,
		Status:    "active",
		CreatedAt: now,
	}
	if err := r.InsertPlant(ctx, tx, p); err != nil {
		return fmt.Errorf("insert plant: %w", err)
	}
	if err := r.UpsertPlantConfigTx(ctx, tx, plantID, seedCfg); err != nil {
		return fmt.Errorf("insert plant config: %w", err)
	}
	return tx.Commit()
}
