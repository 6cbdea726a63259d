package plot

import (
	"github.com/AgaveCraft/PlotSquared/internal/world"
)

// ManagerKind - тип генератора плотов области.
type ManagerKind int

const (
	KindHybrid ManagerKind = iota
	KindFlat
)

func (k ManagerKind) String() string {
	switch k {
	case KindHybrid:
		return "hybrid"
	case KindFlat:
		return "flat"
	default:
		return "unknown"
	}
}

// Manager описывает, как выглядит пустой плот области.
type Manager interface {
	Kind() ManagerKind
	// Layers возвращает слои чистого плота снизу вверх.
	Layers(a *Area) []world.Layer
	// FloorHeight - высота верхнего блока пола.
	FloorHeight() int
}

// HybridManager - плоты с бедроком, заполнителем и полом. Поддерживает
// ускоренную очистку только своего участка.
type HybridManager struct {
	Bedrock world.BlockState
	Filling world.BlockState
	Floor   world.BlockState
	Height  int
}

// NewHybridManager возвращает менеджер со стандартными блоками.
func NewHybridManager(height int) *HybridManager {
	return &HybridManager{Bedrock: world.Bedrock, Filling: world.Stone, Floor: world.Grass, Height: height}
}

func (m *HybridManager) Kind() ManagerKind { return KindHybrid }
func (m *HybridManager) FloorHeight() int  { return m.Height }

func (m *HybridManager) Layers(a *Area) []world.Layer {
	var layers []world.Layer
	// пол на самом дне мира заменяет бедрок
	if m.Height > a.MinY {
		layers = append(layers, world.Layer{State: m.Bedrock, MinY: a.MinY, MaxY: a.MinY})
	}
	if m.Height-1 > a.MinY {
		layers = append(layers, world.Layer{State: m.Filling, MinY: a.MinY + 1, MaxY: m.Height - 1})
	}
	layers = append(layers,
		world.Layer{State: m.Floor, MinY: m.Height, MaxY: m.Height},
		world.Layer{State: world.Air, MinY: m.Height + 1, MaxY: a.MaxY},
	)
	return clampLayers(layers, a)
}

// FlatManager - плоский пол одного блока без дифференциальной очистки.
type FlatManager struct {
	Floor  world.BlockState
	Height int
}

func (m *FlatManager) Kind() ManagerKind { return KindFlat }
func (m *FlatManager) FloorHeight() int  { return m.Height }

func (m *FlatManager) Layers(a *Area) []world.Layer {
	return clampLayers([]world.Layer{
		{State: m.Floor, MinY: a.MinY, MaxY: m.Height},
		{State: world.Air, MinY: m.Height + 1, MaxY: a.MaxY},
	}, a)
}

func clampLayers(layers []world.Layer, a *Area) []world.Layer {
	out := layers[:0]
	for _, l := range layers {
		l.MinY, l.MaxY = max(l.MinY, a.MinY), min(l.MaxY, a.MaxY)
		if l.MinY <= l.MaxY {
			out = append(out, l)
		}
	}
	return out
}

// Area - область плотов в одном мире.
type Area struct {
	World   string
	MinY    int
	MaxY    int
	Manager Manager
}

// SurfaceY возвращает высоту пола области.
func (a *Area) SurfaceY() int {
	if a.Manager == nil {
		return a.MinY
	}
	return a.Manager.FloorHeight()
}

// SupportsDifferentialClear сообщает, умеет ли менеджер области очищать
// только свой плот внутри файла региона.
func (a *Area) SupportsDifferentialClear() bool {
	return a.Manager != nil && a.Manager.Kind() == KindHybrid
}
