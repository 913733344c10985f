package org

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service contém as regras de negócio para resolução e cadastro de organizações.
type Service struct {
	repo     *Repository
	cache    sync.Map
	cacheTTL time.Duration
}

type cachedOrg struct {
	org      Organizacao
	expireAt time.Time
}

// NewService cria uma nova instância de Service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo, cacheTTL: 2 * time.Minute}
}

// Resolve encontra organização pelo slug informado.
func (s *Service) Resolve(ctx context.Context, slug string) (*Organizacao, error) {
	normalized := normalizeSlug(slug)
	if normalized == "" {
		return nil, ErrNotFound
	}

	if v, ok := s.cache.Load(normalized); ok {
		entry := v.(cachedOrg)
		if time.Now().Before(entry.expireAt) {
			orgCopy := entry.org
			return &orgCopy, nil
		}
		s.cache.Delete(normalized)
	}

	o, err := s.repo.GetBySlug(ctx, normalized)
	if err != nil {
		return nil, err
	}

	s.cache.Store(normalized, cachedOrg{org: *o, expireAt: time.Now().Add(s.cacheTTL)})

	orgCopy := *o
	return &orgCopy, nil
}

// Get busca organização pelo identificador, sem cache.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organizacao, error) {
	return s.repo.GetByID(ctx, id)
}

// Create registra uma nova organização.
func (s *Service) Create(ctx context.Context, input CreateOrgInput) (*Organizacao, error) {
	input.Slug = normalizeSlug(input.Slug)
	if input.Settings == nil {
		input.Settings = map[string]any{}
	}

	o, err := s.repo.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	s.cache.Store(o.Slug, cachedOrg{org: *o, expireAt: time.Now().Add(s.cacheTTL)})
	return o, nil
}

// UpdateSettings substitui o JSON de configuração da organização.
func (s *Service) UpdateSettings(ctx context.Context, orgID string, settings map[string]any) error {
	id, err := uuid.Parse(strings.TrimSpace(orgID))
	if err != nil {
		return err
	}
	if settings == nil {
		settings = map[string]any{}
	}

	if err := s.repo.UpsertSettings(ctx, id, settings); err != nil {
		return err
	}

	// Limpa cache forçando refetch na próxima resolução.
	s.cache.Range(func(key, value any) bool {
		entry := value.(cachedOrg)
		if entry.org.ID == id {
			s.cache.Delete(key)
			return false
		}
		return true
	})

	return nil
}

// List devolve todas as organizações.
func (s *Service) List(ctx context.Context) ([]Organizacao, error) {
	orgs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, o := range orgs {
		s.cache.Store(o.Slug, cachedOrg{org: o, expireAt: time.Now().Add(s.cacheTTL)})
	}

	return orgs, nil
}

func normalizeSlug(slug string) string {
	slug = strings.TrimSpace(strings.ToLower(slug))
	slug = strings.ReplaceAll(slug, " ", "-")
	return slug
}
