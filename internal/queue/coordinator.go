package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AgaveCraft/PlotSquared/internal/logging"
	"github.com/AgaveCraft/PlotSquared/internal/world"
)

var (
	// ErrCancelled - задача удалена из очереди до начала выполнения.
	ErrCancelled = errors.New("queue: задача отменена")
	// ErrStopped - очередь остановлена, задача не будет выполнена.
	ErrStopped = errors.New("queue: очередь остановлена")
	// ErrConcurrentAccess - нарушение инварианта одного писателя на мир.
	// Это ошибка программы: она приводит к панике, а не возвращается.
	ErrConcurrentAccess = errors.New("queue: второй писатель для мира")
)

// TaskID - порядковый номер задачи в очереди мира. Нулевое значение не выдаётся.
type TaskID uint64

// Task - единица изменения мира.
type Task struct {
	Name string
	Run  func(tx *Tx) error
}

type entry struct {
	id       TaskID
	task     Task
	future   *Future
	enqueued time.Time
}

// waiter - точка соединения: срабатывает, когда выполнены все задачи с id <= target.
type waiter struct {
	target TaskID
	cb     func()
	ch     chan struct{}
}

// Coordinator - очередь задач одного мира с единственным обработчиком.
// Задачи применяются строго в порядке постановки.
type Coordinator struct {
	world   string
	store   world.Store
	leases  *leaseTable
	metrics *Metrics
	log     *logging.Logger

	mu           sync.Mutex
	backlog      []*entry
	lastID       TaskID
	running      TaskID
	waiters      []*waiter
	completeTask func()
	started      bool
	stopped      bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	applied atomic.Uint64
	failed  atomic.Uint64
}

// NewCoordinator создаёт очередь мира. Обработка начинается после Start.
// leases может быть nil, тогда проверка единственного писателя не выполняется.
func NewCoordinator(worldName string, store world.Store, leases *leaseTable, metrics *Metrics) *Coordinator {
	return &Coordinator{
		world:   worldName,
		store:   store,
		leases:  leases,
		metrics: metrics,
		log:     logging.GetQueueLogger(),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// World возвращает имя мира очереди.
func (c *Coordinator) World() string { return c.world }

// Enqueue добавляет задачу в конец очереди. Future сообщает результат именно этой задачи.
func (c *Coordinator) Enqueue(task Task) (TaskID, *Future) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, Resolved(ErrStopped)
	}
	c.lastID++
	e := &entry{id: c.lastID, task: task, future: newFuture(), enqueued: time.Now()}
	c.backlog = append(c.backlog, e)
	pending := len(c.backlog)
	c.mu.Unlock()

	c.metrics.onEnqueue(c.world, pending)
	c.signal()
	return e.id, e.future
}

// Exec ставит функцию в очередь и запускает обработку.
func (c *Coordinator) Exec(name string, fn func(tx *Tx) error) *Future {
	_, f := c.Enqueue(Task{Name: name, Run: fn})
	c.Start()
	return f
}

// Start запускает обработку очереди (повторные вызовы безопасны) и привязывает
// сохранённую задачу завершения к текущему хвосту очереди.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	complete := c.completeTask
	c.completeTask = nil
	first := !c.started
	c.started = true
	c.mu.Unlock()

	if first {
		if c.leases != nil {
			c.leases.acquire(c.world, c)
		}
		go c.run()
		c.log.Debug("▶️ Очередь мира %s запущена", c.world)
	}
	if complete != nil {
		c.WhenDone(complete)
	}
	c.signal()
}

// WhenDone регистрирует cb, который будет вызван ровно один раз после выполнения
// всех задач, поставленных до вызова WhenDone. Задачи, добавленные позже, не
// задерживают срабатывание. Возвращаемый канал закрывается после возврата из cb.
func (c *Coordinator) WhenDone(cb func()) <-chan struct{} {
	w := &waiter{cb: cb, ch: make(chan struct{})}

	c.mu.Lock()
	w.target = c.lastID
	if c.reachedLocked(w.target) {
		c.mu.Unlock()
		go fire(w)
		return w.ch
	}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return w.ch
}

// SetCompleteTask сохраняет задачу завершения; Start привяжет её к очереди.
func (c *Coordinator) SetCompleteTask(fn func()) {
	c.mu.Lock()
	c.completeTask = fn
	c.mu.Unlock()
}

// CompleteTask возвращает сохранённую и ещё не привязанную задачу завершения.
func (c *Coordinator) CompleteTask() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completeTask
}

// Cancel удаляет ещё не начатую задачу. Выполняющуюся задачу отменить нельзя.
func (c *Coordinator) Cancel(id TaskID) bool {
	c.mu.Lock()
	var removed *entry
	for i, e := range c.backlog {
		if e.id == id {
			removed = e
			c.backlog = append(c.backlog[:i], c.backlog[i+1:]...)
			break
		}
	}
	if removed == nil {
		c.mu.Unlock()
		return false
	}
	ready := c.readyWaitersLocked()
	pending := len(c.backlog)
	c.mu.Unlock()

	removed.future.resolve(ErrCancelled)
	c.metrics.onCancel(c.world, 1, pending)
	for _, w := range ready {
		go fire(w)
	}
	return true
}

// Pending возвращает количество ожидающих задач (без выполняющейся).
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.backlog)
}

// Stats возвращает снимок счётчиков очереди.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		World:   c.world,
		Pending: len(c.backlog),
		Running: c.running != 0,
		Started: c.started,
	}
	c.mu.Unlock()
	s.Applied = c.applied.Load()
	s.Failed = c.failed.Load()
	return s
}

// Stats - снимок состояния очереди мира.
type Stats struct {
	World   string `json:"world"`
	Pending int    `json:"pending"`
	Running bool   `json:"running"`
	Started bool   `json:"started"`
	Applied uint64 `json:"applied"`
	Failed  uint64 `json:"failed"`
}

// Stop дожидается выполнения текущей очереди (или отмены ctx) и останавливает обработчик.
// Задачи, оставшиеся после отмены ctx, завершаются с ErrStopped. Если обработка
// не запускалась, ожидающие задачи сразу отбрасываются.
func (c *Coordinator) Stop(ctx context.Context) error {
	var err error
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		select {
		case <-c.WhenDone(nil):
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	c.halt()
	return err
}

func (c *Coordinator) halt() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	dropped := c.backlog
	c.backlog = nil
	started := c.started
	close(c.stop)
	c.mu.Unlock()

	if started {
		<-c.done
		if c.leases != nil {
			c.leases.release(c.world, c)
		}
	}
	for _, e := range dropped {
		e.future.resolve(ErrStopped)
	}
	if len(dropped) > 0 {
		c.metrics.onCancel(c.world, len(dropped), 0)
		c.log.Warn("⚠️ Очередь мира %s остановлена, отброшено задач: %d", c.world, len(dropped))
	}

	c.mu.Lock()
	ready := c.readyWaitersLocked()
	c.mu.Unlock()
	for _, w := range ready {
		go fire(w)
	}
}

func (c *Coordinator) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// run - единственный обработчик очереди мира.
func (c *Coordinator) run() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		e := c.next()
		if e == nil {
			select {
			case <-c.wake:
				continue
			case <-c.stop:
				return
			}
		}

		start := time.Now()
		err := c.apply(e)
		c.finish(e, err, time.Since(start))
	}
}

func (c *Coordinator) next() *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.backlog) == 0 {
		return nil
	}
	e := c.backlog[0]
	c.backlog[0] = nil
	c.backlog = c.backlog[1:]
	c.running = e.id
	return e
}

// apply выполняет задачу. Паника внутри задачи превращается в ошибку этой задачи.
func (c *Coordinator) apply(e *entry) (err error) {
	tx := &Tx{world: c.world, store: c.store}
	defer func() {
		tx.closed = true
		if r := recover(); r != nil {
			if perr, ok := r.(error); ok && errors.Is(perr, ErrConcurrentAccess) {
				panic(r)
			}
			err = fmt.Errorf("задача %q: паника: %v", e.task.Name, r)
		}
	}()
	if e.task.Run == nil {
		return nil
	}
	return e.task.Run(tx)
}

func (c *Coordinator) finish(e *entry, err error, took time.Duration) {
	c.mu.Lock()
	c.running = 0
	ready := c.readyWaitersLocked()
	pending := len(c.backlog)
	c.mu.Unlock()

	if err != nil {
		c.failed.Add(1)
		c.log.Error("❌ Задача %q в мире %s завершилась ошибкой: %v", e.task.Name, c.world, err)
	} else {
		c.applied.Add(1)
		c.log.Trace("Задача %q в мире %s выполнена за %v", e.task.Name, c.world, took)
	}
	c.metrics.onFinish(c.world, err, took, pending)

	e.future.resolve(err)
	for _, w := range ready {
		go fire(w)
	}
}

// reachedLocked сообщает, что все задачи с id <= target завершены или отменены.
func (c *Coordinator) reachedLocked(target TaskID) bool {
	if c.running != 0 && c.running <= target {
		return false
	}
	return len(c.backlog) == 0 || c.backlog[0].id > target
}

func (c *Coordinator) readyWaitersLocked() []*waiter {
	var ready []*waiter
	rest := c.waiters[:0]
	for _, w := range c.waiters {
		if c.reachedLocked(w.target) {
			ready = append(ready, w)
		} else {
			rest = append(rest, w)
		}
	}
	for i := len(rest); i < len(c.waiters); i++ {
		c.waiters[i] = nil
	}
	c.waiters = rest
	return ready
}

func fire(w *waiter) {
	defer close(w.ch)
	defer func() {
		if r := recover(); r != nil {
			logging.Error("❌ Паника в обработчике завершения очереди: %v", r)
		}
	}()
	if w.cb != nil {
		w.cb()
	}
}
