package queue

import (
	"errors"

	"github.com/AgaveCraft/PlotSquared/internal/vec"
	"github.com/AgaveCraft/PlotSquared/internal/world"
)

// ErrTxClosed возвращается при использовании транзакции после завершения задачи.
var ErrTxClosed = errors.New("queue: использование транзакции после завершения задачи")

// Tx - доступ к одному миру, выдаваемый задаче на время её выполнения.
// Вне задачи транзакция недействительна.
type Tx struct {
	world  string
	store  world.Store
	closed bool
	writes int
}

// World возвращает имя мира транзакции.
func (tx *Tx) World() string { return tx.world }

// Writes возвращает число записей, сделанных через транзакцию.
func (tx *Tx) Writes() int { return tx.writes }

func (tx *Tx) Block(pos vec.Vec3) (world.BlockState, error) {
	if tx.closed {
		return "", ErrTxClosed
	}
	return tx.store.Block(tx.world, pos)
}

func (tx *Tx) SetBlock(pos vec.Vec3, state world.BlockState) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.writes++
	return tx.store.SetBlock(tx.world, pos, state)
}

func (tx *Tx) Biome(pos vec.Vec3) (world.Biome, error) {
	if tx.closed {
		return "", ErrTxClosed
	}
	return tx.store.Biome(tx.world, pos)
}

func (tx *Tx) SetBiome(x, z, minY, maxY int, biome world.Biome) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.writes++
	return tx.store.SetBiome(tx.world, x, z, minY, maxY, biome)
}

func (tx *Tx) Spawn() (vec.Vec3, error) {
	if tx.closed {
		return vec.Vec3{}, ErrTxClosed
	}
	return tx.store.Spawn(tx.world)
}

func (tx *Tx) SetSpawn(pos vec.Vec3) error {
	if tx.closed {
		return ErrTxClosed
	}
	return tx.store.SetSpawn(tx.world, pos)
}

// Save сбрасывает мир на диск.
func (tx *Tx) Save() error {
	if tx.closed {
		return ErrTxClosed
	}
	return tx.store.Save(tx.world)
}

// Fill записывает шаблон во все блоки параллелепипеда.
func (tx *Tx) Fill(c world.Cuboid, p world.Pattern) error {
	return c.ForEach(func(pos vec.Vec3) error {
		return tx.SetBlock(pos, p.At(pos))
	})
}
