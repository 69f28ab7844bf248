package storage

import (
	"NetCollect/internal/scheduler/models"
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type sessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) SessionStore {
	return &sessionStore{pool: pool}
}

// Upsert отражает текущее состояние сессии пула
func (s *sessionStore) Upsert(ctx context.Context, session *models.ConnectionSession) error {
	query := `INSERT INTO connection_sessions (session_id, server_id, protocol_type, status, connected_at, last_activity_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE
		SET status = EXCLUDED.status,
			last_activity_at = EXCLUDED.last_activity_at,
			error_message = EXCLUDED.error_message`

	_, err := s.pool.Exec(ctx, query,
		session.SessionID,
		session.ServerID,
		session.ProtocolType,
		session.Status,
		session.ConnectedAt,
		session.LastActivityAt,
		session.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", session.SessionID, err)
	}

	return nil
}

// Возвращает живые сессии
func (s *sessionStore) ListConnected(ctx context.Context) ([]*models.ConnectionSession, error) {
	query := `SELECT session_id, server_id, protocol_type, status, connected_at, last_activity_at, error_message
		FROM connection_sessions
		WHERE status = $1
		ORDER BY connected_at DESC`

	rows, err := s.pool.Query(ctx, query, models.ConnectionConnected)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.ConnectionSession
	for rows.Next() {
		var session models.ConnectionSession
		err := rows.Scan(
			&session.SessionID,
			&session.ServerID,
			&session.ProtocolType,
			&session.Status,
			&session.ConnectedAt,
			&session.LastActivityAt,
			&session.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("list sessions: failed to scan row: %w", err)
		}
		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: row iteration error: %w", err)
	}

	return sessions, nil
}
