package world

import (
	"fmt"

	"github.com/AgaveCraft/PlotSquared/internal/vec"
)

// Cuboid - неизменяемый параллелепипед мира, выровненный по осям.
// Обе границы включительные, min <= max по каждой оси.
// Значение сравнимо и подходит как ключ map.
type Cuboid struct {
	min vec.Vec3
	max vec.Vec3
}

// NewCuboid строит параллелепипед по двум любым противоположным углам.
func NewCuboid(a, b vec.Vec3) Cuboid {
	return Cuboid{
		min: vec.Vec3{X: min(a.X, b.X), Y: min(a.Y, b.Y), Z: min(a.Z, b.Z)},
		max: vec.Vec3{X: max(a.X, b.X), Y: max(a.Y, b.Y), Z: max(a.Z, b.Z)},
	}
}

func (c Cuboid) Min() vec.Vec3 { return c.min }
func (c Cuboid) Max() vec.Vec3 { return c.max }

// Width - размер по X
func (c Cuboid) Width() int { return c.max.X - c.min.X + 1 }

// Height - размер по Y
func (c Cuboid) Height() int { return c.max.Y - c.min.Y + 1 }

// Length - размер по Z
func (c Cuboid) Length() int { return c.max.Z - c.min.Z + 1 }

// Volume - количество блоков внутри
func (c Cuboid) Volume() int { return c.Width() * c.Height() * c.Length() }

// Dimensions возвращает размеры по трём осям.
func (c Cuboid) Dimensions() vec.Vec3 {
	return vec.Vec3{X: c.Width(), Y: c.Height(), Z: c.Length()}
}

// SameSize сообщает, совпадают ли размеры двух параллелепипедов.
func (c Cuboid) SameSize(o Cuboid) bool {
	return c.Dimensions() == o.Dimensions()
}

// Contains проверяет, лежит ли точка внутри (границы включительно).
func (c Cuboid) Contains(p vec.Vec3) bool {
	return p.X >= c.min.X && p.X <= c.max.X &&
		p.Y >= c.min.Y && p.Y <= c.max.Y &&
		p.Z >= c.min.Z && p.Z <= c.max.Z
}

// ContainsColumn проверяет только проекцию на плоскость XZ.
func (c Cuboid) ContainsColumn(x, z int) bool {
	return x >= c.min.X && x <= c.max.X && z >= c.min.Z && z <= c.max.Z
}

// Intersects сообщает, есть ли у параллелепипедов общий блок.
func (c Cuboid) Intersects(o Cuboid) bool {
	return c.min.X <= o.max.X && o.min.X <= c.max.X &&
		c.min.Y <= o.max.Y && o.min.Y <= c.max.Y &&
		c.min.Z <= o.max.Z && o.min.Z <= c.max.Z
}

// Translate сдвигает параллелепипед на d.
func (c Cuboid) Translate(d vec.Vec3) Cuboid {
	return Cuboid{min: c.min.Add(d), max: c.max.Add(d)}
}

// WithY заменяет вертикальные границы, сохраняя проекцию XZ.
func (c Cuboid) WithY(minY, maxY int) Cuboid {
	a, b := c.min, c.max
	a.Y, b.Y = minY, maxY
	return NewCuboid(a, b)
}

// ClampY обрезает вертикальные границы диапазоном [minY, maxY].
// Второй результат false, если пересечения нет.
func (c Cuboid) ClampY(minY, maxY int) (Cuboid, bool) {
	lo, hi := max(c.min.Y, minY), min(c.max.Y, maxY)
	if lo > hi {
		return Cuboid{}, false
	}
	return c.WithY(lo, hi), true
}

// RegionBounds возвращает включительный прямоугольник координат файлов регионов.
func (c Cuboid) RegionBounds() (lo, hi vec.Vec2) {
	return c.min.RegionCoords(), c.max.RegionCoords()
}

// ForEachColumn обходит колонны (x, z) в порядке X, затем Z.
func (c Cuboid) ForEachColumn(fn func(x, z int)) {
	for x := c.min.X; x <= c.max.X; x++ {
		for z := c.min.Z; z <= c.max.Z; z++ {
			fn(x, z)
		}
	}
}

// ForEach обходит все блоки. Обход прекращается, если fn вернул ошибку.
func (c Cuboid) ForEach(fn func(p vec.Vec3) error) error {
	for x := c.min.X; x <= c.max.X; x++ {
		for z := c.min.Z; z <= c.max.Z; z++ {
			for y := c.min.Y; y <= c.max.Y; y++ {
				if err := fn(vec.Vec3{X: x, Y: y, Z: z}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ChunkColumns разбивает проекцию XZ на части, не выходящие за границы чанков.
// Каждая часть сохраняет вертикальные границы исходного параллелепипеда.
func (c Cuboid) ChunkColumns() []Cuboid {
	var parts []Cuboid
	for cx := c.min.X >> vec.ChunkShift; cx <= c.max.X>>vec.ChunkShift; cx++ {
		for cz := c.min.Z >> vec.ChunkShift; cz <= c.max.Z>>vec.ChunkShift; cz++ {
			lo := vec.Vec3{X: max(c.min.X, cx<<vec.ChunkShift), Y: c.min.Y, Z: max(c.min.Z, cz<<vec.ChunkShift)}
			hi := vec.Vec3{X: min(c.max.X, cx<<vec.ChunkShift+15), Y: c.max.Y, Z: min(c.max.Z, cz<<vec.ChunkShift+15)}
			parts = append(parts, Cuboid{min: lo, max: hi})
		}
	}
	return parts
}

func (c Cuboid) String() string {
	return fmt.Sprintf("[%s-%s]", c.min, c.max)
}
