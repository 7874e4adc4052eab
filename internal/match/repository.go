package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/lexset/letterduel/pkg/gamedto"
)

// Record is the persisted shape of a match.
type Record struct {
	ID           string
	Code         string
	State        State
	Settings     gamedto.Settings
	Participants []string
	Winner       string
	CreatedAt    time.Time
	EndedAt      time.Time
}

// Repository persists match records. Calls are made asynchronously by the
// manager; a failing repository degrades durability, never gameplay.
type Repository interface {
	CreateMatchRecord(ctx context.Context, rec *Record) error
	UpdateMatchState(ctx context.Context, matchID string, state State, winner string, endedAt time.Time) error
}

// PostgresRepository stores match records in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRepository) CreateMatchRecord(ctx context.Context, rec *Record) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}
	settingsRaw, _ := json.Marshal(rec.Settings)
	participantsRaw, _ := json.Marshal(rec.Participants)

	q := `INSERT INTO matches (
	    match_id, code, state, settings, participants, created_at
	  ) VALUES ($1,$2,$3,$4,$5,$6)
	  ON CONFLICT (match_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.Code, string(rec.State),
		string(settingsRaw), string(participantsRaw), rec.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) UpdateMatchState(ctx context.Context, matchID string, state State, winner string, endedAt time.Time) error {
	if r == nil || r.db == nil {
		return nil
	}
	var ended sql.NullTime
	if !endedAt.IsZero() {
		ended = sql.NullTime{Time: endedAt, Valid: true}
	}
	var win sql.NullString
	if strings.TrimSpace(winner) != "" {
		win = sql.NullString{String: winner, Valid: true}
	}

	q := `UPDATE matches SET state=$2, winner=$3, ended_at=$4 WHERE match_id=$1`
	_, err := r.db.ExecContext(ctx, q, matchID, string(state), win, ended)
	return err
}

var _ Repository = (*PostgresRepository)(nil)
