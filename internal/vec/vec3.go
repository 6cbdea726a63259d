package vec

import "fmt"

// Vec3 представляет трехмерный вектор с целочисленными координатами блока
type Vec3 struct {
	X int
	Y int
	Z int
}

// Column отбрасывает высоту и возвращает колонну (X, Z)
func (v Vec3) Column() Vec2 {
	return Vec2{X: v.X, Z: v.Z}
}

// ChunkCoords возвращает координаты чанка, содержащего блок
func (v Vec3) ChunkCoords() Vec2 {
	return v.Column().ToChunkCoords()
}

// RegionCoords возвращает координаты файла региона, содержащего блок
func (v Vec3) RegionCoords() Vec2 {
	return v.Column().ToRegionCoords()
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает other из v
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}
