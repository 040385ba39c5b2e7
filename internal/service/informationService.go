package service

import (
	"context"
	"errors"

	"github.com/scaleserve/scaleserve/internal/cache"
	"github.com/scaleserve/scaleserve/internal/entity"
	"github.com/scaleserve/scaleserve/internal/source"
)

// InformationCallback observes information-request progress.
type InformationCallback interface {
	// SourceAccessed reports source freshness for header purposes.
	SourceAccessed(stat *entity.StatResult)
	// CacheAccessed reports that the characteristics came from the info
	// cache rather than a fresh derivation. The stat carries the cache
	// entry's serialization instant.
	CacheAccessed(stat *entity.StatResult)
}

// InformationRequestService orchestrates one information request. Stateless
// per invocation; safe for concurrent use.
type InformationRequestService struct {
	resolver source.Resolver
	usage    *source.Usage
	facade   *cache.Facade
}

func NewInformationRequestService(resolver source.Resolver, usage *source.Usage, facade *cache.Facade) *InformationRequestService {
	return &InformationRequestService{resolver: resolver, usage: usage, facade: facade}
}

func (s *InformationRequestService) Handle(ctx context.Context, meta entity.MetaIdentifier, auth Authorizer, cb InformationCallback) (*entity.Info, error) {
	result, err := auth.AuthorizeBeforeAccess(ctx, meta)
	if err != nil {
		return nil, err
	}
	if !result.Allowed() {
		return nil, result.Deny()
	}

	src, err := s.resolver.Resolve(ctx, meta.ID)
	if err != nil {
		return nil, err
	}
	stat, err := src.Stat(ctx)
	if err != nil {
		return nil, err
	}
	s.usage.Record(src)
	cb.SourceAccessed(stat)

	if cached, err := s.facade.PeekInfo(ctx, meta.ID); err == nil {
		serialized := cached.Serialized
		cb.CacheAccessed(&entity.StatResult{LastModified: &serialized})
	} else if !errors.Is(err, entity.ErrCacheMiss) {
		return nil, err
	}

	info, err := s.facade.ResolveInfo(ctx, meta.ID, func(ctx context.Context) (*entity.Info, error) {
		return readSourceInfo(ctx, src)
	})
	if err != nil {
		return nil, err
	}

	result, err = auth.Authorize(ctx, meta, info)
	if err != nil {
		return nil, err
	}
	if !result.Allowed() {
		// The description itself is not secret once resolved; callers may
		// still serve it alongside the denial status.
		return info, result.Deny()
	}
	return info, nil
}
