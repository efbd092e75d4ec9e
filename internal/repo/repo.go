package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"factoryline/internal/config"
	"factoryline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertPlant(ctx context.Context, tx *sql.Tx, p domain.Plant) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO plants(id,name,status,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, p.Status, p.CreatedAt)
	return err
}

func (r Repo) GetPlant(ctx context.Context, id string) (domain.Plant, error) {
	var p domain.Plant
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,created_at FROM plants WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) SinglePlant(ctx context.Context) (domain.Plant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM plants`)
	if err != nil {
		return domain.Plant{}, err
	}
	defer rows.Close()
	var plants []domain.Plant
	for rows.Next() {
		var p domain.Plant
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt); err != nil {
			return domain.Plant{}, err
		}
		plants = append(plants, p)
	}
	if len(plants) == 0 {
		return domain.Plant{}, ErrNotFound
	}
	if len(plants) > 1 {
		return domain.Plant{}, fmt.Errorf("multiple plants exist; specify --plant")
	}
	return plants[0], nil
}

func (r Repo) ListPlants(ctx context.Context) ([]domain.Plant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM plants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Plant
	for rows.Next() {
		var p domain.Plant
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func (r Repo) UpsertPlantConfig(ctx context.Context, plantID string, cfg *config.Config) error {
	return upsertPlantConfig(ctx, r.DB, nil, plantID, cfg)
}

func (r Repo) UpsertPlantConfigTx(ctx context.Context, tx *sql.Tx, plantID string, cfg *config.Config) error {
	return upsertPlantConfig(ctx, nil, tx, plantID, cfg)
}

func upsertPlantConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, plantID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Plant.ID = plantID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO plant_configs(plant_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(plant_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, plantID, string(payload), now, now)
	return err
}

func (r Repo) GetPlantConfig(ctx context.Context, plantID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM plant_configs WHERE plant_id=?`, plantID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Plant.ID == "" {
		cfg.Plant.ID = plantID
	}
	return &cfg, cfg.Validate()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
