package vec

import "fmt"

// RegionShift - показатель размера файла региона: 1<<9 = 512 блоков (32×32 чанка).
const RegionShift = 9

// ChunkShift - показатель размера чанка: 16 блоков.
const ChunkShift = 4

// Vec2 представляет координаты колонны мира (X, Z)
type Vec2 struct {
	X, Z int
}

// ToChunkCoords преобразует координаты блока в координаты чанка
func (v Vec2) ToChunkCoords() Vec2 {
	return Vec2{X: v.X >> ChunkShift, Z: v.Z >> ChunkShift} // Деление на 16
}

// ToRegionCoords преобразует координаты блока в координаты файла региона
func (v Vec2) ToRegionCoords() Vec2 {
	return Vec2{X: v.X >> RegionShift, Z: v.Z >> RegionShift} // Деление на 512 (16*32)
}

// LocalInChunk возвращает локальные координаты внутри чанка
func (v Vec2) LocalInChunk() Vec2 {
	return Vec2{X: v.X & 0xF, Z: v.Z & 0xF} // Модуль 16
}

func (v Vec2) String() string {
	return fmt.Sprintf("(%d,%d)", v.X, v.Z)
}
