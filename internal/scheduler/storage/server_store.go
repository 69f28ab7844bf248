package storage

import (
	"NetCollect/internal/scheduler/models"
	"NetCollect/pkg/uuidutil"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type serverStore struct {
	pool *pgxpool.Pool
}

func NewServerStore(pool *pgxpool.Pool) ServerStore {
	return &serverStore{pool: pool}
}

// Создаем новый сервер
func (s *serverStore) Create(ctx context.Context, server *models.Server) error {
	if server.ID == "" {
		server.ID = uuidutil.New()
	}
	server.CreatedAt = time.Now()
	server.UpdatedAt = time.Now()

	query := `INSERT INTO servers (id, name, host, port, username, password, protocol_type, device_type, management_type, status, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		server.ID,
		server.Name,
		server.Host,
		server.Port,
		server.Username,
		server.Password,
		server.ProtocolType,
		server.DeviceType,
		server.ManagementType,
		server.Status,
		server.Description,
		server.CreatedAt,
		server.UpdatedAt,
	)

	return err
}

// Возвращает сервер по ID
func (s *serverStore) GetByID(ctx context.Context, id string) (*models.Server, error) {
	query := `SELECT id, name, host, port, username, password, protocol_type, device_type, management_type, status, description, created_at, updated_at
		FROM servers WHERE id = $1`

	var server models.Server
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&server.ID,
		&server.Name,
		&server.Host,
		&server.Port,
		&server.Username,
		&server.Password,
		&server.ProtocolType,
		&server.DeviceType,
		&server.ManagementType,
		&server.Status,
		&server.Description,
		&server.CreatedAt,
		&server.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	return &server, err
}

// Обновляет статус сервера
func (s *serverStore) UpdateStatus(ctx context.Context, id string, status models.ServerStatus) error {
	query := `UPDATE servers SET status = $1, updated_at = $2 WHERE id = $3`
	_, err := s.pool.Exec(ctx, query, status, time.Now(), id)
	return err
}

// Возвращает список серверов
func (s *serverStore) List(ctx context.Context, limit, offset int) ([]*models.Server, error) {
	query := `
		SELECT id, name, host, port, username, password, protocol_type, device_type, management_type, status, description, created_at, updated_at
		FROM servers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list servers: failed to query servers (limit=%d, offset=%d): %w", limit, offset, err)
	}
	defer rows.Close()

	var servers []*models.Server
	for rows.Next() {
		var server models.Server
		err := rows.Scan(
			&server.ID,
			&server.Name,
			&server.Host,
			&server.Port,
			&server.Username,
			&server.Password,
			&server.ProtocolType,
			&server.DeviceType,
			&server.ManagementType,
			&server.Status,
			&server.Description,
			&server.CreatedAt,
			&server.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("list servers: failed to scan row: %w", err)
		}
		servers = append(servers, &server)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list servers: row iteration error: %w", err)
	}

	return servers, nil
}
