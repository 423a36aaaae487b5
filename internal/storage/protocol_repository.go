package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/quest-engine/internal/models"
)

// ProtocolRepository handles the integrated protocol catalog.
type ProtocolRepository struct {
	db *PostgresDB
}

// NewProtocolRepository creates a new protocol repository
func NewProtocolRepository(db *PostgresDB) *ProtocolRepository {
	return &ProtocolRepository{db: db}
}

// Create inserts a protocol. Slugs are unique.
func (r *ProtocolRepository) Create(ctx context.Context, protocol *models.Protocol) error {
	configJSON, err := json.Marshal(protocol.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal protocol config: %w", err)
	}

	query := `
		INSERT INTO protocols (slug, name, logo_url, config)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err = r.db.Pool().QueryRow(ctx, query,
		protocol.Slug, protocol.Name, protocol.LogoURL, configJSON,
	).Scan(&protocol.ID)
	if err != nil {
		return fmt.Errorf("failed to create protocol: %w", err)
	}
	return nil
}

// List returns all protocols ordered by slug.
func (r *ProtocolRepository) List(ctx context.Context) ([]*models.Protocol, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT id, slug, name, logo_url, config FROM protocols ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to list protocols: %w", err)
	}
	defer rows.Close()

	var protocols []*models.Protocol
	for rows.Next() {
		protocol, err := scanProtocol(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan protocol: %w", err)
		}
		protocols = append(protocols, protocol)
	}
	return protocols, rows.Err()
}

// GetBySlug retrieves a protocol by slug, or nil when it does not exist.
func (r *ProtocolRepository) GetBySlug(ctx context.Context, slug string) (*models.Protocol, error) {
	query := `SELECT id, slug, name, logo_url, config FROM protocols WHERE slug = $1`

	protocol, err := scanProtocol(r.db.Pool().QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get protocol: %w", err)
	}
	return protocol, nil
}

func scanProtocol(row pgx.Row) (*models.Protocol, error) {
	var protocol models.Protocol
	var config []byte

	if err := row.Scan(&protocol.ID, &protocol.Slug, &protocol.Name, &protocol.LogoURL, &config); err != nil {
		return nil, err
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &protocol.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal protocol config: %w", err)
		}
	}
	return &protocol, nil
}
