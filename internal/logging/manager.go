package logging

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Имена компонентов сервиса плотов.
const (
	ComponentQueue  = "queue"
	ComponentRegion = "regionmgr"
	ComponentExport = "export"
	ComponentPlot   = "plot"
	ComponentAPI    = "api"
)

// registry хранит по одному логгеру на компонент.
type registry struct {
	mu      sync.Mutex
	loggers map[string]*Logger
}

var components = &registry{loggers: make(map[string]*Logger)}

func (r *registry) get(component string) (*Logger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.loggers[component]; ok {
		return l, nil
	}
	l, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("логгер компонента %s: %w", component, err)
	}
	r.loggers[component] = l
	return l, nil
}

func (r *registry) closeAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, l := range r.loggers {
		errs = append(errs, l.Close())
	}
	r.loggers = make(map[string]*Logger)
	return errors.Join(errs...)
}

// Components возвращает имена созданных компонентных логгеров.
func Components() []string {
	components.mu.Lock()
	defer components.mu.Unlock()

	names := make([]string, 0, len(components.loggers))
	for name := range components.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetComponentLogger возвращает логгер компонента. Если файл лога создать не
// удалось, компонент пишет только в консоль основного логгера.
func GetComponentLogger(component string) *Logger {
	l, err := components.get(component)
	if err == nil {
		return l
	}
	base := current()
	base.Warn("⚠️ %v, используется консоль", err)
	return &Logger{
		component:       component,
		consoleLogger:   base.consoleLogger,
		minConsoleLevel: base.minConsoleLevel,
		minFileLevel:    ERROR,
	}
}

func GetQueueLogger() *Logger  { return GetComponentLogger(ComponentQueue) }
func GetRegionLogger() *Logger { return GetComponentLogger(ComponentRegion) }
func GetExportLogger() *Logger { return GetComponentLogger(ComponentExport) }
func GetPlotLogger() *Logger   { return GetComponentLogger(ComponentPlot) }
