package eventbus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrNoSubscribers  = errors.New("eventbus: no matching subscribers")
	ErrInvalidHandler = errors.New("eventbus: invalid handler")
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// EventBus delivers an event to every handler whose event parameter accepts it.
// A handler is func(E), func(E) error, func(context.Context, E) or
// func(context.Context, E) error.
type EventBus interface {
	Publish(ctx context.Context, event any) error
	Subscribe(handler any) error
	SubscribersCount() int
}

type subscriber struct {
	fn        reflect.Value
	event     reflect.Type
	takesCtx  bool
	returnErr bool
}

type bus struct {
	log  *logrus.Logger
	mu   sync.RWMutex
	subs []subscriber
}

func New(log *logrus.Logger) EventBus {
	return &bus{log: log}
}

func (b *bus) Subscribe(handler any) error {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func {
		return fmt.Errorf("%w: %T is not a function", ErrInvalidHandler, handler)
	}
	s := subscriber{fn: reflect.ValueOf(handler)}
	switch {
	case t.NumIn() == 1:
		s.event = t.In(0)
	case t.NumIn() == 2 && t.In(0) == contextType:
		s.takesCtx = true
		s.event = t.In(1)
	default:
		return fmt.Errorf("%w: %s takes %d arguments", ErrInvalidHandler, t, t.NumIn())
	}
	switch {
	case t.NumOut() == 0:
	case t.NumOut() == 1 && t.Out(0) == errorType:
		s.returnErr = true
	default:
		return fmt.Errorf("%w: %s must return nothing or error", ErrInvalidHandler, t)
	}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return nil
}

func (s subscriber) accepts(event any) bool {
	if event == nil {
		k := s.event.Kind()
		return k == reflect.Interface || k == reflect.Ptr
	}
	return reflect.TypeOf(event).AssignableTo(s.event)
}

// Publish calls the matching handlers in subscription order. Handler errors and
// panics are joined into the returned error; the remaining handlers still run.
func (b *bus) Publish(ctx context.Context, event any) error {
	b.mu.RLock()
	subs := append([]subscriber(nil), b.subs...)
	b.mu.RUnlock()

	var errs []error
	handled := false
	for _, s := range subs {
		if !s.accepts(event) {
			continue
		}
		handled = true
		if err := s.call(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if !handled {
		if b.log != nil {
			b.log.Debugf("eventbus: no subscribers for %T", event)
		}
		return ErrNoSubscribers
	}
	err := errors.Join(errs...)
	if err != nil && b.log != nil {
		b.log.WithError(err).Warnf("eventbus: handlers failed for %T", event)
	}
	return err
}

func (s subscriber) call(ctx context.Context, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: handler %s panicked: %v", s.fn.Type(), r)
		}
	}()
	ev := reflect.ValueOf(event)
	if event == nil {
		ev = reflect.Zero(s.event)
	}
	in := []reflect.Value{ev}
	if s.takesCtx {
		in = []reflect.Value{reflect.ValueOf(ctx), ev}
	}
	out := s.fn.Call(in)
	if s.returnErr && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}

func (b *bus) SubscribersCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
