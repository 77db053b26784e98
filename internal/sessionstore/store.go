// Package sessionstore persists the §3 Session lifecycle
// (pending → claimed → completed) backing the §4.8 REST surface,
// grounded on the teacher's callcontext.Store (Claim's atomic
// conditional UPDATE, Complete, Delete, UpdateField's column
// allowlist).
package sessionstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/connectors"
)

var ErrNotFound = fmt.Errorf("sessionstore: not found")
var ErrAlreadyClaimed = fmt.Errorf("sessionstore: already claimed")

// Store provides CRUD and atomic claim operations over Session rows.
type Store interface {
	Create(ctx context.Context, sessionID string) (*Session, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Claim(ctx context.Context, sessionID string) (*Session, error)
	Complete(ctx context.Context, sessionID string) error
	IncrementUtteranceCount(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
}

type postgresStore struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

// NewStore builds a Postgres-backed Store.
func NewStore(postgres connectors.PostgresConnector, logger commons.Logger) Store {
	return &postgresStore{postgres: postgres, logger: logger}
}

func (s *postgresStore) Create(ctx context.Context, sessionID string) (*Session, error) {
	sess := &Session{
		SessionID: sessionID,
		Status:    StatusPending,
	}
	db := s.postgres.DB(ctx)
	if err := db.Create(sess).Error; err != nil {
		return nil, fmt.Errorf("sessionstore: create %s: %w", sessionID, err)
	}
	s.logger.Infof("sessionstore: created session %s", sessionID)
	return sess, nil
}

func (s *postgresStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	db := s.postgres.DB(ctx)
	var sess Session
	if err := db.Where("session_id = ?", sessionID).First(&sess).Error; err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return &sess, nil
}

// Claim atomically transitions a session from pending to claimed via a
// conditional UPDATE, so that of several concurrent admission attempts
// against the same session_id, at most one wins — mirroring the
// teacher's callcontext.Store.Claim.
func (s *postgresStore) Claim(ctx context.Context, sessionID string) (*Session, error) {
	db := s.postgres.DB(ctx)

	result := db.Model(&Session{}).
		Where("session_id = ? AND status = ?", sessionID, StatusPending).
		Updates(map[string]interface{}{
			"status":       StatusClaimed,
			"updated_date": time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("sessionstore: claim %s: %w", sessionID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClaimed, sessionID)
	}

	var sess Session
	if err := db.Where("session_id = ?", sessionID).First(&sess).Error; err != nil {
		return nil, fmt.Errorf("sessionstore: fetch claimed %s: %w", sessionID, err)
	}
	return &sess, nil
}

func (s *postgresStore) Complete(ctx context.Context, sessionID string) error {
	db := s.postgres.DB(ctx)
	result := db.Model(&Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"status":       StatusCompleted,
			"updated_date": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("sessionstore: complete %s: %w", sessionID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}

func (s *postgresStore) IncrementUtteranceCount(ctx context.Context, sessionID string) error {
	db := s.postgres.DB(ctx)
	result := db.Model(&Session{}).
		Where("session_id = ?", sessionID).
		UpdateColumn("utterance_count", gorm.Expr("utterance_count + 1"))
	if result.Error != nil {
		return fmt.Errorf("sessionstore: increment utterance count %s: %w", sessionID, result.Error)
	}
	return nil
}

func (s *postgresStore) Delete(ctx context.Context, sessionID string) error {
	db := s.postgres.DB(ctx)
	result := db.Where("session_id = ?", sessionID).Delete(&Session{})
	if result.Error != nil {
		return fmt.Errorf("sessionstore: delete %s: %w", sessionID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}
