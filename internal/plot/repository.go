package plot

import (
	"context"
	"errors"
	"fmt"

	"github.com/AgaveCraft/PlotSquared/internal/vec"
	"github.com/AgaveCraft/PlotSquared/internal/world"
	"github.com/google/uuid"
)

// ErrNotFound - плот не найден в хранилище.
var ErrNotFound = errors.New("plot: плот не найден")

// Repository хранит плоты.
type Repository interface {
	Save(ctx context.Context, p *Plot) error
	// Load возвращает плот области или ErrNotFound.
	Load(ctx context.Context, area *Area, id ID) (*Plot, error)
	Delete(ctx context.Context, world string, id ID) error
	List(ctx context.Context, area *Area) ([]*Plot, error)
}

// Snapshot - сериализуемое представление плота.
type Snapshot struct {
	World   string   `json:"world"`
	ID      ID       `json:"id"`
	Owner   string   `json:"owner"`
	Regions [][6]int `json:"regions"`
	Home    *[3]int  `json:"home,omitempty"`
	Trusted []string `json:"trusted"`
	Members []string `json:"members"`
	Denied  []string `json:"denied"`
}

// Snapshot снимает копию состояния плота.
func (p *Plot) Snapshot() Snapshot {
	s := Snapshot{
		World:   p.World(),
		ID:      p.ID(),
		Owner:   p.Owner().String(),
		Trusted: uuidStrings(p.Trusted()),
		Members: uuidStrings(p.Members()),
		Denied:  uuidStrings(p.Denied()),
	}
	for _, r := range p.Regions() {
		lo, hi := r.Min(), r.Max()
		s.Regions = append(s.Regions, [6]int{lo.X, lo.Y, lo.Z, hi.X, hi.Y, hi.Z})
	}
	p.mu.RLock()
	if p.home != nil {
		s.Home = &[3]int{p.home.X, p.home.Y, p.home.Z}
	}
	p.mu.RUnlock()
	return s
}

// FromSnapshot восстанавливает плот области из снимка.
func FromSnapshot(area *Area, s Snapshot) (*Plot, error) {
	owner, err := uuid.Parse(s.Owner)
	if err != nil {
		return nil, fmt.Errorf("плот %s: владелец: %w", s.ID, err)
	}
	p := New(s.ID, area, owner)
	for _, r := range s.Regions {
		p.Merge(world.NewCuboid(vec.Vec3{X: r[0], Y: r[1], Z: r[2]}, vec.Vec3{X: r[3], Y: r[4], Z: r[5]}))
	}
	if s.Home != nil {
		p.SetHome(vec.Vec3{X: s.Home[0], Y: s.Home[1], Z: s.Home[2]})
	}
	sets := []struct {
		ids []string
		add func(uuid.UUID) bool
	}{
		{s.Trusted, p.AddTrusted},
		{s.Members, p.AddMember},
		{s.Denied, p.AddDenied},
	}
	for _, set := range sets {
		for _, raw := range set.ids {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("плот %s: игрок %q: %w", s.ID, raw, err)
			}
			set.add(id)
		}
	}
	return p, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
