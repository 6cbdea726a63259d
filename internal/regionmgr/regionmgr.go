// Package regionmgr превращает операции над плотами (заливка, очистка,
// копирование, обмен, биомы, регенерация) в задачи очередей миров.
//
// Все операции асинхронны: они ставят задачи в очереди и сразу возвращают
// Future. Второй результат false означает, что вариант менеджера операцию
// не поддерживает и вызывающий должен выбрать другой путь.
package regionmgr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AgaveCraft/PlotSquared/internal/plot"
	"github.com/AgaveCraft/PlotSquared/internal/queue"
	"github.com/AgaveCraft/PlotSquared/internal/world"
)

var (
	// ErrInvalidExtend - недопустимое значение вертикального расширения биома.
	ErrInvalidExtend = errors.New("regionmgr: недопустимое расширение биома")
	// ErrOverlap - области обмена пересекаются.
	ErrOverlap = errors.New("regionmgr: области пересекаются")
	// ErrUnknownKind - неизвестный вариант менеджера.
	ErrUnknownKind = errors.New("regionmgr: неизвестный вариант менеджера")
)

// Значения extendBiome.
const (
	// ExtendNone - только вертикальные границы области.
	ExtendNone = 0
	// ExtendColumn - вся колонна от нижней до верхней границы мира.
	ExtendColumn = -1
)

// Kind - вариант менеджера, выбирается конфигурацией.
type Kind string

const (
	// KindQueue - общий путь: задачи по колоннам чанков, без дифференциальной очистки.
	KindQueue Kind = "queue"
	// KindAccelerated - пакетные задачи по файлам регионов и быстрая очистка плотов.
	KindAccelerated Kind = "accelerated"
)

// ParseKind разбирает имя варианта без учёта регистра.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindQueue, KindAccelerated:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Options - зависимости менеджера.
type Options struct {
	Queue *queue.GlobalQueue
	// Generator нужен для RegenerateRegion; без него регенерация не поддерживается.
	Generator world.Generator
	// AcceleratedClear включает быструю очистку в ускоренном варианте.
	AcceleratedClear bool
	// Границы высот мира для расширения биомов.
	MinY, MaxY int
}

// Manager - операции над областями мира.
type Manager interface {
	Kind() Kind

	// SetCuboids заливает pattern во все кубы в полосе высот [minY, maxY].
	// false, если кубов нет или шаблон пуст.
	SetCuboids(ctx context.Context, area *plot.Area, regions []world.Cuboid, pattern world.Pattern, minY, maxY int) (*queue.Future, bool)

	// NotifyClear сообщает, берёт ли вариант очистку плотов этого менеджера на себя.
	NotifyClear(m plot.Manager) bool

	// HandleClear возвращает все кубы плота к пустому состоянию области,
	// не трогая соседние плоты. false - нужна медленная очистка.
	HandleClear(ctx context.Context, p *plot.Plot) (*queue.Future, bool)

	// Swap обменивает содержимое куба [pos1, pos2] с кубом того же размера в swapPos.
	Swap(ctx context.Context, pos1, pos2, swapPos world.Location) (*queue.Future, bool)

	// CopyRegion копирует [pos1, pos2] в куб того же размера с углом в pos3.
	CopyRegion(ctx context.Context, pos1, pos2, pos3 world.Location) (*queue.Future, bool)

	// SetBiome назначает биом колоннам куба; extend задаёт вертикальную полосу.
	SetBiome(ctx context.Context, region world.Cuboid, extend int, biome world.Biome, worldName string) (*queue.Future, bool)

	// RegenerateRegion возвращает куб к виду свежесгенерированного мира.
	// Колонны, для которых ignore возвращает true, пропускаются.
	RegenerateRegion(ctx context.Context, pos1, pos2 world.Location, ignore func(x, z int) bool) (*queue.Future, bool)
}

// New создаёт менеджер выбранного варианта.
func New(kind Kind, opts Options) (Manager, error) {
	if opts.Queue == nil {
		return nil, errors.New("regionmgr: не задана глобальная очередь")
	}
	if opts.MaxY < opts.MinY {
		return nil, fmt.Errorf("regionmgr: min_y %d больше max_y %d", opts.MinY, opts.MaxY)
	}
	switch kind {
	case KindQueue:
		return newQueueManager(opts), nil
	case KindAccelerated:
		return newAcceleratedManager(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
