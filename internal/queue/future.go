package queue

import (
	"context"
	"errors"
	"sync"
)

// Future - сигнал завершения асинхронной операции и её результат.
// Разрешается ровно один раз.
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Pending создаёт неразрешённый Future и функцию его разрешения.
// Повторные вызовы resolve игнорируются.
func Pending() (*Future, func(error)) {
	f := newFuture()
	return f, f.resolve
}

// Resolved возвращает уже завершённый Future с результатом err.
func Resolved(err error) *Future {
	f := newFuture()
	f.resolve(err)
	return f
}

func (f *Future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done закрывается после завершения операции.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err возвращает результат операции. До завершения возвращает nil.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait блокирует до завершения операции или отмены ctx.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnDone вызывает cb с результатом после завершения (в отдельной горутине).
func (f *Future) OnDone(cb func(error)) {
	go func() {
		<-f.done
		cb(f.err)
	}()
}

// Then запускает следующую стадию после успешного завершения.
// Ошибка текущей стадии передаётся дальше без вызова next.
// Если next возвращает nil, итоговый Future завершается успешно.
func (f *Future) Then(next func() *Future) *Future {
	out := newFuture()
	go func() {
		<-f.done
		if f.err != nil {
			out.resolve(f.err)
			return
		}
		nf := next()
		if nf == nil {
			out.resolve(nil)
			return
		}
		<-nf.done
		out.resolve(nf.err)
	}()
	return out
}

// All объединяет Future: результат готов, когда готовы все; ошибки объединяются.
// nil-элементы пропускаются.
func All(futures ...*Future) *Future {
	out := newFuture()
	go func() {
		var errs []error
		for _, f := range futures {
			if f == nil {
				continue
			}
			<-f.done
			if f.err != nil {
				errs = append(errs, f.err)
			}
		}
		out.resolve(errors.Join(errs...))
	}()
	return out
}
