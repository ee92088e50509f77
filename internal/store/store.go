package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/dobble-backend/internal/engine"
)

// MatchRecord is the audit row for one completed match. Nothing is restored from it.
type MatchRecord struct {
	ID          uint      `gorm:"primaryKey"`
	LobbyID     int32     `gorm:"index;not null"`
	WinnerID    string    `gorm:"type:varchar(64)"`
	Winner      string    `gorm:"type:varchar(64)"`
	WinnerScore int       `gorm:"not null"`
	StartedAt   time.Time
	EndedAt     time.Time `gorm:"index"`
	CreatedAt   time.Time

	Standings []StandingRecord `gorm:"foreignKey:MatchID;constraint:OnDelete:CASCADE"`
}

type StandingRecord struct {
	ID       uint   `gorm:"primaryKey"`
	MatchID  uint   `gorm:"index;not null"`
	Position int    `gorm:"not null"` // join order
	PlayerID string `gorm:"type:varchar(64);not null"`
	Name     string `gorm:"type:varchar(64)"`
	Score    int    `gorm:"not null"`
}

type Recorder struct {
	db *gorm.DB
}

// Open connects to postgres and migrates the result tables.
func Open(ctx context.Context, dsn string) (*Recorder, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	r := New(db)
	if err := r.AutoMigrate(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func New(db *gorm.DB) *Recorder { return &Recorder{db: db} }

func (r *Recorder) AutoMigrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&MatchRecord{}, &StandingRecord{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// RecordMatch writes the match and its standings in one transaction.
func (r *Recorder) RecordMatch(ctx context.Context, res engine.Result) error {
	rec := MatchRecord{
		LobbyID:     res.LobbyID,
		WinnerID:    res.WinnerID,
		Winner:      res.Winner,
		WinnerScore: res.WinnerScore,
		StartedAt:   res.StartedAt,
		EndedAt:     res.EndedAt,
	}
	for i, s := range res.Standings {
		rec.Standings = append(rec.Standings, StandingRecord{Position: i, PlayerID: s.PlayerID, Name: s.Name, Score: s.Score})
	}

	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record match for lobby %d: %w", res.LobbyID, err)
	}
	return nil
}

// Recent returns the newest matches first, with standings in join order.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]MatchRecord, error) {
	var out []MatchRecord
	err := r.db.WithContext(ctx).
		Preload("Standings", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Order("ended_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("recent matches: %w", err)
	}
	return out, nil
}

func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
