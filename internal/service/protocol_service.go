package service

import (
	"context"
	"fmt"

	"github.com/quest-engine/internal/models"
)

// ProtocolCatalog provides protocol persistence.
type ProtocolCatalog interface {
	Create(ctx context.Context, protocol *models.Protocol) error
	List(ctx context.Context) ([]*models.Protocol, error)
	GetBySlug(ctx context.Context, slug string) (*models.Protocol, error)
}

// ProtocolService manages the integrated protocol catalog.
type ProtocolService struct {
	protocols ProtocolCatalog
}

// NewProtocolService creates a protocol service.
func NewProtocolService(protocols ProtocolCatalog) *ProtocolService {
	return &ProtocolService{protocols: protocols}
}

// CreateProtocol inserts a protocol after checking the slug is free.
func (s *ProtocolService) CreateProtocol(ctx context.Context, protocol *models.Protocol) (*models.Protocol, error) {
	if protocol.Slug == "" || protocol.Name == "" {
		return nil, fmt.Errorf("protocol slug and name are required")
	}

	existing, err := s.protocols.GetBySlug(ctx, protocol.Slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("protocol slug already exists: %s", protocol.Slug)
	}

	if err := s.protocols.Create(ctx, protocol); err != nil {
		return nil, err
	}
	return protocol, nil
}

// ListProtocols returns all protocols.
func (s *ProtocolService) ListProtocols(ctx context.Context) ([]*models.Protocol, error) {
	return s.protocols.List(ctx)
}
