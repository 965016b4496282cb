// Package services – TopicService
//
// This file implements TopicService, which manages the topics used to
// classify expressions and petitions and to suffix their numero. Reads go
// through a bounded TTL cache; every write invalidates the affected entry.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/cache"
	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/repo"
)

var abbreviationRE = regexp.MustCompile(`^[A-Z0-9]{1,12}$`)

// TopicService implements topic reads and admin writes.
type TopicService struct {
	DB    *gorm.DB
	Cache *cache.Topics
}

// NewTopicService constructs a TopicService; c may be nil to disable caching.
func NewTopicService(db *gorm.DB, c *cache.Topics) *TopicService {
	return &TopicService{DB: db, Cache: c}
}

// Get returns the topic with id, consulting the cache first.
func (s *TopicService) Get(ctx context.Context, id string) (*domain.Topic, error) {
	if t, ok := s.Cache.Get(id); ok {
		return &t, nil
	}
	t, err := repo.GetTopic(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFoundf("topic %s not found", id)
	}
	if err != nil {
		return nil, storeErr(ctx, "topic.get", err, map[string]string{"topic_id": id})
	}
	s.Cache.Put(*t)
	return t, nil
}

// Abbreviation returns the numero suffix configured for topic id, or "" when
// the topic has none.
func (s *TopicService) Abbreviation(ctx context.Context, id string) (string, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return t.Abbreviation, nil
}

// List returns all topics ordered by name. Lists bypass the cache.
func (s *TopicService) List(ctx context.Context) ([]domain.Topic, error) {
	out, err := repo.ListTopics(ctx, s.DB)
	if err != nil {
		return nil, storeErr(ctx, "topic.list", err, nil)
	}
	return out, nil
}

// Create adds a topic. Names are unique; abbreviations are upper-cased.
func (s *TopicService) Create(ctx context.Context, name, abbreviation string) (*domain.Topic, error) {
	name, abbreviation, err := normalizeTopic(name, abbreviation)
	if err != nil {
		return nil, err
	}
	t, err := repo.CreateTopic(ctx, s.DB, name, abbreviation)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, conflictf("topic %q already exists", name)
	}
	if err != nil {
		return nil, storeErr(ctx, "topic.create", err, map[string]string{"name": name})
	}
	return t, nil
}

// Update renames a topic and/or changes its abbreviation, then drops it from
// the cache. Numeros already issued are not rewritten.
func (s *TopicService) Update(ctx context.Context, id, name, abbreviation string) (*domain.Topic, error) {
	name, abbreviation, err := normalizeTopic(name, abbreviation)
	if err != nil {
		return nil, err
	}
	err = repo.UpdateTopic(ctx, s.DB, id, name, abbreviation)
	s.Cache.Invalidate(id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil, notFoundf("topic %s not found", id)
	case errors.Is(err, repo.ErrDuplicate):
		return nil, conflictf("topic %q already exists", name)
	case err != nil:
		return nil, storeErr(ctx, "topic.update", err, map[string]string{"topic_id": id})
	}
	return s.Get(ctx, id)
}

func normalizeTopic(name, abbreviation string) (string, string, error) {
	name = whitespaceRE.ReplaceAllString(strings.TrimSpace(name), " ")
	abbreviation = strings.ToUpper(strings.TrimSpace(abbreviation))
	if name == "" {
		return "", "", validationf("name is required")
	}
	if abbreviation != "" && !abbreviationRE.MatchString(abbreviation) {
		return "", "", validationf("abbreviation must be 1-12 letters or digits")
	}
	return name, abbreviation, nil
}
