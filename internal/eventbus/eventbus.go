package eventbus

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed возвращается при публикации в закрытую шину.
var ErrClosed = errors.New("eventbus: шина закрыта")

// Envelope описывает контейнер события плотов.
type Envelope struct {
	ID            string            // UUID события.
	Timestamp     time.Time         // Время создания события (UTC).
	Source        string            // Имя сервиса-источника.
	EventType     string            // Тип события (plot.cleared, plot.exported…).
	Version       int               // Схема полезной нагрузки.
	CorrelationID string            // Для связывания цепочек (trace id запроса).
	Priority      int               // 0=Low … 9=Critical (для backpressure).
	Payload       []byte            // JSON полезной нагрузки.
	Metadata      map[string]string // Мир и прочие метаданные.
}

// World возвращает мир события из метаданных.
func (ev *Envelope) World() string { return ev.Metadata["world"] }

// Filter позволяет подписаться только на нужные события. Пустые поля не
// ограничивают выборку.
type Filter struct {
	Types  []string
	Worlds []string
	// Since отсекает более старые события; JetStream начинает чтение стрима с
	// этого момента.
	Since time.Time
}

// Match сообщает, проходит ли событие фильтр.
func (f Filter) Match(ev *Envelope) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, ev.EventType) {
		return false
	}
	if len(f.Worlds) > 0 && !slices.Contains(f.Worlds, ev.World()) {
		return false
	}
	return f.Since.IsZero() || !ev.Timestamp.Before(f.Since)
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus определяет абстракцию шины событий: память или NATS JetStream.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

//================ In-Memory implementation =================//

// highPriority - события с этим приоритетом и выше ждут места в буфере,
// остальные при переполнении отбрасываются.
const highPriority = 5

type memoryBus struct {
	mu     sync.RWMutex
	subs   map[int]*memSub
	nextID int
	buffer chan *Envelope

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64

	closeMu sync.RWMutex // удерживается публикацией на время отправки в buffer
	closed  bool
	wg      sync.WaitGroup
}

// NewMemoryBus создаёт in-memory шину с общим буфером capacity. Каждый
// подписчик получает события в порядке публикации.
func NewMemoryBus(capacity int) EventBus {
	mb := &memoryBus{
		subs:   make(map[int]*memSub),
		buffer: make(chan *Envelope, capacity),
	}
	mb.wg.Add(1)
	go mb.dispatchLoop()
	return mb
}

func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.closeMu.RLock()
	defer mb.closeMu.RUnlock()
	if mb.closed {
		return ErrClosed
	}

	select {
	case mb.buffer <- ev:
		mb.published.Add(1)
		return nil
	default:
	}
	if ev.Priority < highPriority {
		mb.dropped.Add(1)
		return nil
	}
	select {
	case mb.buffer <- ev:
		mb.published.Add(1)
		return nil
	case <-ctx.Done():
		mb.dropped.Add(1)
		return ctx.Err()
	}
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	cctx, cancel := context.WithCancel(ctx)
	s := &memSub{
		bus:     mb,
		filter:  f,
		handler: h,
		ctx:     cctx,
		cancel:  cancel,
		inbox:   make(chan *Envelope, cap(mb.buffer)+1),
		done:    make(chan struct{}),
	}

	mb.mu.Lock()
	s.id = mb.nextID
	mb.nextID++
	mb.subs[s.id] = s
	mb.mu.Unlock()

	go s.run()
	return s, nil
}

func (mb *memoryBus) Metrics() Stats {
	return Stats{
		Published: mb.published.Load(),
		Consumed:  mb.consumed.Load(),
		Dropped:   mb.dropped.Load(),
		InFlight:  len(mb.buffer),
	}
}

// Close прекращает приём событий, дожидается рассылки буфера и останавливает
// подписчиков после обработки уже полученных ими событий.
func (mb *memoryBus) Close() error {
	mb.closeMu.Lock()
	if mb.closed {
		mb.closeMu.Unlock()
		return nil
	}
	mb.closed = true
	close(mb.buffer)
	mb.closeMu.Unlock()
	mb.wg.Wait()

	mb.mu.Lock()
	subs := make([]*memSub, 0, len(mb.subs))
	for id, s := range mb.subs {
		subs = append(subs, s)
		delete(mb.subs, id)
	}
	mb.mu.Unlock()
	for _, s := range subs {
		close(s.inbox)
		<-s.done
	}
	return nil
}

// dispatchLoop раскладывает события по очередям подписчиков.
func (mb *memoryBus) dispatchLoop() {
	defer mb.wg.Done()
	for ev := range mb.buffer {
		mb.mu.RLock()
		for _, s := range mb.subs {
			if !s.filter.Match(ev) {
				continue
			}
			select {
			case s.inbox <- ev:
			default:
				mb.dropped.Add(1)
			}
		}
		mb.mu.RUnlock()
	}
}

type memSub struct {
	bus     *memoryBus
	id      int
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	inbox   chan *Envelope
	done    chan struct{}
}

func (s *memSub) run() {
	defer close(s.done)
	for ev := range s.inbox {
		if s.ctx.Err() != nil {
			continue
		}
		s.handler(s.ctx, ev)
		s.bus.consumed.Add(1)
	}
}

// Unsubscribe прекращает доставку. Событие, которое обрабатывается в момент
// вызова, дорабатывается.
func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	_, ok := s.bus.subs[s.id]
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()

	s.cancel()
	if ok {
		close(s.inbox)
	}
}
