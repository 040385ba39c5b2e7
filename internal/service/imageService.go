package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/scaleserve/scaleserve/internal/async"
	"github.com/scaleserve/scaleserve/internal/cache"
	"github.com/scaleserve/scaleserve/internal/entity"
	"github.com/scaleserve/scaleserve/internal/pkg/kafka"
	"github.com/scaleserve/scaleserve/internal/pkg/processor"
	"github.com/scaleserve/scaleserve/internal/source"
)

// ImageCallback lets the caller observe handler progress in a fixed order:
// SourceAccessed, then InfoAvailable, then exactly one of
// WillStreamImageFromVariantCache or WillProcessImage.
type ImageCallback interface {
	// SourceAccessed reports source freshness, ahead of any cache decision,
	// so freshness headers can be set even on the cache hit path.
	SourceAccessed(stat *entity.StatResult)
	// InfoAvailable hands over image characteristics so the caller can
	// finish building the operation list against real dimensions. A returned
	// error aborts the request.
	InfoAvailable(info *entity.Info) error
	// WillStreamImageFromVariantCache announces a cache hit about to be
	// streamed, bypassing the processor.
	WillStreamImageFromVariantCache(stat *entity.StatResult)
	// WillProcessImage announces a cache miss about to be processed.
	WillProcessImage(info *entity.Info)
}

// ImageRequestService orchestrates one image request: authorization, source
// stat, info resolution, variant cache check, processing. Stateless per
// invocation; safe for concurrent use.
type ImageRequestService struct {
	resolver  source.Resolver
	usage     *source.Usage
	facade    *cache.Facade
	processor processor.Processor
	producer  kafka.Producer
	events    *async.Pool
}

// NewImageRequestService wires the request orchestrator. The events pool, when
// non-nil, takes event publishing off the request path.
func NewImageRequestService(resolver source.Resolver, usage *source.Usage, facade *cache.Facade, proc processor.Processor, producer kafka.Producer, events *async.Pool) *ImageRequestService {
	return &ImageRequestService{
		resolver:  resolver,
		usage:     usage,
		facade:    facade,
		processor: proc,
		producer:  producer,
		events:    events,
	}
}

// Handle runs the request against ops, writing the variant to w. The list
// must still be open at entry; it is frozen once the callback has finished
// amending it.
func (s *ImageRequestService) Handle(ctx context.Context, ops *entity.OperationList, auth Authorizer, cb ImageCallback, w io.Writer) error {
	meta := ops.Meta()

	result, err := auth.AuthorizeBeforeAccess(ctx, meta)
	if err != nil {
		return err
	}
	if !result.Allowed() {
		return result.Deny()
	}

	src, err := s.resolver.Resolve(ctx, meta.ID)
	if err != nil {
		return err
	}
	stat, err := src.Stat(ctx)
	if err != nil {
		return err
	}
	s.usage.Record(src)
	cb.SourceAccessed(stat)

	info, err := s.facade.ResolveInfo(ctx, meta.ID, func(ctx context.Context) (*entity.Info, error) {
		return readSourceInfo(ctx, src)
	})
	if err != nil {
		return err
	}
	if err := cb.InfoAvailable(info); err != nil {
		return err
	}
	ops.Freeze()

	result, err = auth.Authorize(ctx, meta, info)
	if err != nil {
		return err
	}
	if !result.Allowed() {
		return result.Deny()
	}

	if rc, cachedStat, err := s.facade.OpenVariant(ctx, ops); err == nil {
		defer rc.Close()
		cb.WillStreamImageFromVariantCache(cachedStat)
		_, err := io.Copy(w, rc)
		return err
	} else if !errors.Is(err, entity.ErrCacheMiss) {
		return err
	}

	cb.WillProcessImage(info)
	return s.process(ctx, src, ops, info, w)
}

func (s *ImageRequestService) process(ctx context.Context, src source.Source, ops *entity.OperationList, info *entity.Info, w io.Writer) error {
	r, err := src.NewReader(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	dst := w
	entry := s.facade.CreateVariant(ctx, ops)
	if entry != nil {
		dst = io.MultiWriter(w, entry)
	}

	if err := s.processor.Process(ctx, r, ops, info, dst); err != nil {
		if entry != nil {
			if aerr := entry.Abort(); aerr != nil {
				logrus.Warnf("aborting variant cache entry: %v", aerr)
			}
		}
		return fmt.Errorf("processing %s: %w", string(ops.Identifier()), err)
	}
	if entry != nil {
		if cerr := entry.Close(); cerr != nil {
			logrus.Warnf("committing variant cache entry: %v", cerr)
		}
	}
	s.publish(kafka.Event{
		Name:       kafka.EventVariantProcessed,
		Identifier: string(ops.Identifier()),
	})
	return nil
}

func (s *ImageRequestService) publish(event kafka.Event) {
	if s.producer == nil {
		return
	}
	send := func() {
		if err := s.producer.SendEvent(event); err != nil {
			logrus.Warnf("publishing %s event: %v", event.Name, err)
		}
	}
	if s.events != nil {
		s.events.Submit(send)
		return
	}
	send()
}

// readSourceInfo derives image characteristics from the source's bytes.
func readSourceInfo(ctx context.Context, src source.Source) (*entity.Info, error) {
	r, err := src.NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return processor.ReadInfo(r)
}
