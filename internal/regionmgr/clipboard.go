package regionmgr

import (
	"github.com/AgaveCraft/PlotSquared/internal/queue"
	"github.com/AgaveCraft/PlotSquared/internal/vec"
	"github.com/AgaveCraft/PlotSquared/internal/world"
)

// clipboard - буфер блоков куба в порядке обхода Cuboid.ForEach.
type clipboard struct {
	size   vec.Vec3
	blocks []world.BlockState
}

func copyFrom(tx *queue.Tx, c world.Cuboid) (*clipboard, error) {
	cb := &clipboard{size: c.Dimensions(), blocks: make([]world.BlockState, 0, c.Volume())}
	err := c.ForEach(func(p vec.Vec3) error {
		st, err := tx.Block(p)
		if err != nil {
			return err
		}
		cb.blocks = append(cb.blocks, st)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cb, nil
}

// target - куб того же размера с минимальным углом в at.
func (cb *clipboard) target(at vec.Vec3) world.Cuboid {
	return world.NewCuboid(at, at.Add(cb.size).Sub(vec.Vec3{X: 1, Y: 1, Z: 1}))
}

func (cb *clipboard) pasteTo(tx *queue.Tx, at vec.Vec3) error {
	i := 0
	return cb.target(at).ForEach(func(p vec.Vec3) error {
		st := cb.blocks[i]
		i++
		return tx.SetBlock(p, st)
	})
}
