package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegionCoordsNegative(t *testing.T) {
	assert.Equal(t, Vec2{X: 0, Z: 0}, Vec3{X: 511, Y: 64, Z: 0}.RegionCoords())
	assert.Equal(t, Vec2{X: 1, Z: -1}, Vec3{X: 512, Y: 0, Z: -1}.RegionCoords(), "сдвиг должен округлять вниз")
	assert.Equal(t, Vec2{X: -2, Z: 0}, Vec3{X: -513, Y: 0, Z: 15}.RegionCoords())
}

func TestChunkCoordsAndLocal(t *testing.T) {
	v := Vec2{X: -1, Z: 17}
	assert.Equal(t, Vec2{X: -1, Z: 1}, v.ToChunkCoords())
	assert.Equal(t, Vec2{X: 15, Z: 1}, v.LocalInChunk())
}

func TestVec3Arithmetic(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: 10, Y: 20, Z: 30}
	assert.True(t, a.Add(b).Sub(b).Equals(a))
	assert.Equal(t, "(1,2,3)", a.String())
}
