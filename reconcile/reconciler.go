// Package reconcile decides, per remote resource kind, whether to reuse an
// existing object or create a new one. Objects are matched by exact name.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrCreateRejected = errors.New("server did not return an id for created object")
	ErrUpdateRejected = errors.New("server did not return an id for updated object")
)

// Resource is a remote object identified by name within its kind.
type Resource interface {
	GetID() int64
	GetName() string
}

// Kind binds the remote operations for one resource kind. Update is only
// set for kinds whose existing objects are overwritten.
type Kind[T Resource] struct {
	Name   string
	List   func(ctx context.Context) ([]T, error)
	Create func(ctx context.Context, spec T) (T, error)
	Update func(ctx context.Context, id int64, spec T) (T, error)
}

type Reconciler[T Resource] struct {
	kind   Kind[T]
	logger *zap.Logger
}

func New[T Resource](kind Kind[T], logger *zap.Logger) *Reconciler[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler[T]{
		kind:   kind,
		logger: logger.With(zap.String("kind", kind.Name)),
	}
}

// FindByName lists the kind and returns the first object named name. The
// list is fetched on every call.
func (r *Reconciler[T]) FindByName(ctx context.Context, name string) (T, bool, error) {
	var zero T
	items, err := r.kind.List(ctx)
	if err != nil {
		return zero, false, fmt.Errorf("failed to list %s: %w", r.kind.Name, err)
	}
	for _, item := range items {
		if item.GetName() == name {
			return item, true, nil
		}
	}
	return zero, false, nil
}

// GetOrCreate returns the existing object named spec.GetName() untouched, or
// creates spec when none exists.
func (r *Reconciler[T]) GetOrCreate(ctx context.Context, spec T) (T, error) {
	existing, found, err := r.FindByName(ctx, spec.GetName())
	if err != nil {
		return existing, err
	}
	if found {
		r.logger.Info("Reusing existing object",
			zap.String("name", existing.GetName()),
			zap.Int64("id", existing.GetID()))
		return existing, nil
	}
	return r.create(ctx, spec)
}

// Upsert overwrites the existing object named spec.GetName(), or creates spec
// when none exists.
func (r *Reconciler[T]) Upsert(ctx context.Context, spec T) (T, error) {
	if r.kind.Update == nil {
		var zero T
		return zero, fmt.Errorf("%s objects cannot be updated", r.kind.Name)
	}
	existing, found, err := r.FindByName(ctx, spec.GetName())
	if err != nil {
		return existing, err
	}
	if !found {
		return r.create(ctx, spec)
	}

	updated, err := r.kind.Update(ctx, existing.GetID(), spec)
	if err != nil {
		return updated, fmt.Errorf("failed to update %s %q: %w", r.kind.Name, spec.GetName(), err)
	}
	if updated.GetID() == 0 {
		return updated, fmt.Errorf("%w: %s %q", ErrUpdateRejected, r.kind.Name, spec.GetName())
	}
	r.logger.Info("Updated existing object",
		zap.String("name", updated.GetName()),
		zap.Int64("id", updated.GetID()))
	return updated, nil
}

func (r *Reconciler[T]) create(ctx context.Context, spec T) (T, error) {
	created, err := r.kind.Create(ctx, spec)
	if err != nil {
		return created, fmt.Errorf("failed to create %s %q: %w", r.kind.Name, spec.GetName(), err)
	}
	if created.GetID() == 0 {
		return created, fmt.Errorf("%w: %s %q", ErrCreateRejected, r.kind.Name, spec.GetName())
	}
	r.logger.Info("Created object",
		zap.String("name", created.GetName()),
		zap.Int64("id", created.GetID()))
	return created, nil
}
