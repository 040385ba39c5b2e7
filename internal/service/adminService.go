package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scaleserve/scaleserve/internal/async"
	"github.com/scaleserve/scaleserve/internal/cache"
	"github.com/scaleserve/scaleserve/internal/entity"
	"github.com/scaleserve/scaleserve/internal/health"
	"github.com/scaleserve/scaleserve/internal/pkg/kafka"
)

// AdminService backs the administrative API: cache eviction, background
// tasks and health.
type AdminService struct {
	facade   *cache.Facade
	registry *async.TaskRegistry
	checker  *health.Checker
	producer kafka.Producer
	events   *async.Pool
}

// NewAdminService wires the admin orchestrator. The events pool, when non-nil,
// takes event publishing off the request path.
func NewAdminService(facade *cache.Facade, registry *async.TaskRegistry, checker *health.Checker, producer kafka.Producer, events *async.Pool) *AdminService {
	return &AdminService{facade: facade, registry: registry, checker: checker, producer: producer, events: events}
}

// EvictIdentifier purges all cached state for one identifier, immediately.
func (s *AdminService) EvictIdentifier(ctx context.Context, id entity.Identifier) error {
	if err := s.facade.EvictIdentifier(ctx, id); err != nil {
		return err
	}
	s.publish(kafka.Event{Name: kafka.EventCacheEvicted, Identifier: string(id)})
	return nil
}

// Purge task names accepted by SubmitTask.
const (
	TaskPurgeVariantCache = "PurgeVariantCache"
	TaskPurgeInfoCache    = "PurgeInfoCache"
	TaskPurgeInvalidInfos = "PurgeInvalidInfos"
	TaskPurgeIdentifier   = "PurgeIdentifier"
)

// SubmitTask enqueues a named maintenance job on the background queue and
// returns its handle. Heavy purges run one at a time there instead of on the
// request path.
func (s *AdminService) SubmitTask(name string, id entity.Identifier) (*async.Task, error) {
	var fn func() error
	switch name {
	case TaskPurgeVariantCache:
		fn = func() error { return s.facade.EvictAllVariants(context.Background()) }
	case TaskPurgeInfoCache:
		fn = func() error { return s.facade.EvictAllInfos(context.Background()) }
	case TaskPurgeInvalidInfos:
		fn = func() error {
			n, err := s.facade.EvictInvalidInfos(context.Background())
			if err != nil {
				return err
			}
			logrus.Infof("evicted %d invalid info entries", n)
			return nil
		}
	case TaskPurgeIdentifier:
		if id == "" {
			return nil, fmt.Errorf("task %s requires an identifier", name)
		}
		fn = func() error { return s.facade.EvictIdentifier(context.Background(), id) }
	default:
		return nil, fmt.Errorf("unknown task %q", name)
	}

	task := s.registry.Submit(name, func() error {
		err := fn()
		event := kafka.Event{Name: kafka.EventTaskCompleted, Detail: name, Identifier: string(id)}
		if err != nil {
			event.Detail = fmt.Sprintf("%s: %v", name, err)
		}
		s.publish(event)
		return err
	})
	return task, nil
}

// Task returns the handle for a previously submitted task.
func (s *AdminService) Task(id uuid.UUID) (*async.Task, bool) {
	return s.registry.Get(id)
}

// Tasks returns all known task handles.
func (s *AdminService) Tasks() []*async.Task {
	return s.registry.All()
}

// Health runs the configured probes. Concurrent mode bounds the wait and
// degrades to YELLOW on timeout.
func (s *AdminService) Health(ctx context.Context, concurrent bool) *entity.Health {
	if concurrent {
		return s.checker.CheckConcurrent(ctx)
	}
	return s.checker.CheckSerial(ctx)
}

func (s *AdminService) publish(event kafka.Event) {
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
