package world

import (
	"github.com/AgaveCraft/PlotSquared/internal/util"
)

// Константы высот для генерации (доли от нормализованного шума)
const (
	DeepWaterMax  = 0.20 // Ниже - океан
	ShallowMax    = 0.30 // Ниже - мелководье и пляжи
	MountainStart = 0.80 // Выше - горы
	SeaLevel      = 62
)

// Column - содержимое одной колонны свежесгенерированного мира.
// Blocks[i] соответствует высоте MinY+i.
type Column struct {
	MinY   int
	Blocks []BlockState
	Biome  Biome
}

// At возвращает блок на высоте y; вне колонны - воздух.
func (c Column) At(y int) BlockState {
	i := y - c.MinY
	if i < 0 || i >= len(c.Blocks) {
		return Air
	}
	return c.Blocks[i]
}

// Generator строит колонны мира так, как их создал бы генератор нового мира.
type Generator interface {
	Column(x, z, minY, maxY int) Column
}

// PerlinGenerator генерирует холмистый ландшафт с биомами
type PerlinGenerator struct {
	Seed       int64   // Сид для генерации шума
	NoiseScale float64 // Масштаб основного шума (высота)
	BiomeScale float64 // Масштаб шума биомов
	BaseHeight int     // Высота при нулевом шуме
	Amplitude  int     // Размах высот

	height *util.Noise
	biome  *util.Noise
}

// NewPerlinGenerator создаёт генератор с настройками по умолчанию
func NewPerlinGenerator(seed int64) *PerlinGenerator {
	return &PerlinGenerator{
		Seed:       seed,
		NoiseScale: 0.01,
		BiomeScale: 0.004,
		BaseHeight: 40,
		Amplitude:  60,
		height:     util.NewNoise(seed),
		biome:      util.NewNoise(seed + 42),
	}
}

// Column генерирует колонну (x, z) в диапазоне высот [minY, maxY]
func (g *PerlinGenerator) Column(x, z, minY, maxY int) Column {
	h := g.height.Noise2D(float64(x)*g.NoiseScale, float64(z)*g.NoiseScale)
	b := g.biome.Noise2D(float64(x)*g.BiomeScale, float64(z)*g.BiomeScale)
	biome := biomeFor(h, b)
	surface := g.BaseHeight + int(h*float64(g.Amplitude))

	col := Column{MinY: minY, Blocks: make([]BlockState, maxY-minY+1), Biome: biome}
	for y := minY; y <= maxY; y++ {
		var st BlockState
		switch {
		case y == minY:
			st = Bedrock
		case y < surface-3:
			st = Stone
		case y < surface:
			st = Dirt
		case y == surface:
			st = surfaceBlock(biome)
		case y <= SeaLevel && (biome == Ocean || h < ShallowMax):
			st = Water
		default:
			st = Air
		}
		col.Blocks[y-minY] = st
	}
	return col
}

// biomeFor определяет тип биома на основе значений шума
func biomeFor(height, biomeValue float64) Biome {
	if height < DeepWaterMax {
		return Ocean
	}
	if height > MountainStart {
		return Mountains
	}
	// Для средних высот выбираем биом на основе biomeValue (шум в [0, 1])
	if biomeValue < 0.35 {
		return Desert
	} else if biomeValue > 0.65 {
		return Forest
	}
	return Plains
}

func surfaceBlock(b Biome) BlockState {
	switch b {
	case Desert, Ocean:
		return Sand
	case Mountains:
		return Stone
	default:
		return Grass
	}
}

// FlatGenerator строит плоский мир из слоёв (мир для плотов).
type FlatGenerator struct {
	Layers []Layer
	Biome  Biome
}

// NewFlatGenerator создаёт генератор плоского мира: бедрок, камень, земля, трава.
func NewFlatGenerator(minY int) *FlatGenerator {
	return &FlatGenerator{
		Layers: []Layer{
			{State: Bedrock, MinY: minY, MaxY: minY},
			{State: Stone, MinY: minY + 1, MaxY: 60},
			{State: Dirt, MinY: 61, MaxY: 63},
			{State: Grass, MinY: 64, MaxY: 64},
		},
		Biome: Plains,
	}
}

func (g *FlatGenerator) Column(x, z, minY, maxY int) Column {
	col := Column{MinY: minY, Blocks: make([]BlockState, maxY-minY+1), Biome: g.Biome}
	for i := range col.Blocks {
		col.Blocks[i] = Air
	}
	for _, l := range g.Layers {
		for y := max(l.MinY, minY); y <= min(l.MaxY, maxY); y++ {
			col.Blocks[y-minY] = l.State
		}
	}
	return col
}
