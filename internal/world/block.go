package world

import (
	"encoding/binary"
	"strings"

	"github.com/AgaveCraft/PlotSquared/internal/vec"
	"github.com/cespare/xxhash/v2"
)

// BlockState - идентификатор состояния блока в пространстве имён, например "minecraft:stone".
type BlockState string

// Biome - идентификатор биома, например "minecraft:plains".
type Biome string

const (
	Air     BlockState = "minecraft:air"
	Bedrock BlockState = "minecraft:bedrock"
	Stone   BlockState = "minecraft:stone"
	Dirt    BlockState = "minecraft:dirt"
	Grass   BlockState = "minecraft:grass_block"
	Sand    BlockState = "minecraft:sand"
	Water   BlockState = "minecraft:water"

	Plains    Biome = "minecraft:plains"
	Desert    Biome = "minecraft:desert"
	Forest    Biome = "minecraft:forest"
	Mountains Biome = "minecraft:windswept_hills"
	Ocean     Biome = "minecraft:ocean"
)

// ParseBlockState дополняет идентификатор пространством имён minecraft при его отсутствии.
func ParseBlockState(s string) BlockState {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, ":") {
		s = "minecraft:" + s
	}
	return BlockState(s)
}

// Pattern - набор состояний блоков для заливки. Состояние для позиции выбирается
// детерминированно по хешу координат, поэтому повторная заливка даёт тот же результат.
type Pattern []BlockState

// NewPattern собирает шаблон, отбрасывая пустые состояния.
func NewPattern(states ...BlockState) Pattern {
	p := make(Pattern, 0, len(states))
	for _, s := range states {
		if s != "" {
			p = append(p, s)
		}
	}
	return p
}

// ParsePattern разбирает список вида "stone,dirt,grass_block".
func ParsePattern(s string) Pattern {
	var states []BlockState
	for _, part := range strings.Split(s, ",") {
		states = append(states, ParseBlockState(part))
	}
	return NewPattern(states...)
}

// IsEmpty сообщает, что заливать нечем.
func (p Pattern) IsEmpty() bool { return len(p) == 0 }

// At возвращает состояние блока для позиции.
func (p Pattern) At(pos vec.Vec3) BlockState {
	switch len(p) {
	case 0:
		return Air
	case 1:
		return p[0]
	}
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(pos.X))
	binary.LittleEndian.PutUint64(buf[8:], uint64(pos.Y))
	binary.LittleEndian.PutUint64(buf[16:], uint64(pos.Z))
	return p[xxhash.Sum64(buf[:])%uint64(len(p))]
}

// Layer - горизонтальный слой одного блока, например пол плота.
type Layer struct {
	State BlockState
	MinY  int
	MaxY  int
}

// Location - точка в конкретном мире.
type Location struct {
	World string
	Pos   vec.Vec3
}
