// Package plot описывает плоты: участки мира с владельцем, наборами
// доверенных, участников и заблокированных игроков.
package plot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/AgaveCraft/PlotSquared/internal/vec"
	"github.com/AgaveCraft/PlotSquared/internal/world"
	"github.com/google/uuid"
)

// ID - координаты плота в сетке плотов мира.
type ID struct {
	X, Y int
}

func (id ID) String() string {
	return fmt.Sprintf("%d;%d", id.X, id.Y)
}

// ParseID разбирает "x;y" (также принимается "x,y").
func ParseID(s string) (ID, error) {
	sep := ";"
	if !strings.Contains(s, sep) {
		sep = ","
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return ID{}, fmt.Errorf("некорректный id плота %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return ID{}, fmt.Errorf("некорректный id плота %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return ID{}, fmt.Errorf("некорректный id плота %q: %w", s, err)
	}
	return ID{X: x, Y: y}, nil
}

// Plot - плот. Может состоять из нескольких объединённых кубов.
type Plot struct {
	mu sync.RWMutex

	id      ID
	area    *Area
	owner   uuid.UUID
	regions []world.Cuboid
	home    *vec.Vec3

	trusted map[uuid.UUID]struct{}
	members map[uuid.UUID]struct{}
	denied  map[uuid.UUID]struct{}
}

// New создаёт плот. Вертикальные границы кубов приводятся к высотам области.
func New(id ID, area *Area, owner uuid.UUID, regions ...world.Cuboid) *Plot {
	p := &Plot{
		id:      id,
		area:    area,
		owner:   owner,
		trusted: make(map[uuid.UUID]struct{}),
		members: make(map[uuid.UUID]struct{}),
		denied:  make(map[uuid.UUID]struct{}),
	}
	for _, r := range regions {
		p.regions = append(p.regions, r.WithY(area.MinY, area.MaxY))
	}
	return p
}

func (p *Plot) ID() ID        { return p.id }
func (p *Plot) Area() *Area   { return p.area }
func (p *Plot) World() string { return p.area.World }

func (p *Plot) Owner() uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.owner
}

func (p *Plot) SetOwner(owner uuid.UUID) {
	p.mu.Lock()
	p.owner = owner
	p.mu.Unlock()
}

// Regions возвращает копию списка связанных кубов плота.
func (p *Plot) Regions() []world.Cuboid {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]world.Cuboid(nil), p.regions...)
}

// Merge присоединяет куб к плоту.
func (p *Plot) Merge(r world.Cuboid) {
	p.mu.Lock()
	p.regions = append(p.regions, r.WithY(p.area.MinY, p.area.MaxY))
	p.mu.Unlock()
}

// Bounds возвращает охватывающий параллелепипед всех кубов плота.
func (p *Plot) Bounds() (world.Cuboid, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.regions) == 0 {
		return world.Cuboid{}, false
	}
	lo, hi := p.regions[0].Min(), p.regions[0].Max()
	for _, r := range p.regions[1:] {
		lo = vec.Vec3{X: min(lo.X, r.Min().X), Y: min(lo.Y, r.Min().Y), Z: min(lo.Z, r.Min().Z)}
		hi = vec.Vec3{X: max(hi.X, r.Max().X), Y: max(hi.Y, r.Max().Y), Z: max(hi.Z, r.Max().Z)}
	}
	return world.NewCuboid(lo, hi), true
}

// Home возвращает точку дома плота. Без явной установки это центр первого
// куба над полом.
func (p *Plot) Home() vec.Vec3 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.home != nil {
		return *p.home
	}
	if len(p.regions) == 0 {
		return vec.Vec3{}
	}
	r := p.regions[0]
	return vec.Vec3{
		X: (r.Min().X + r.Max().X) / 2,
		Y: p.area.SurfaceY() + 1,
		Z: (r.Min().Z + r.Max().Z) / 2,
	}
}

// HomeLocation возвращает дом вместе с именем мира.
func (p *Plot) HomeLocation() world.Location {
	return world.Location{World: p.World(), Pos: p.Home()}
}

func (p *Plot) SetHome(pos vec.Vec3) {
	p.mu.Lock()
	p.home = &pos
	p.mu.Unlock()
}

// ResetHome возвращает дом в точку по умолчанию.
func (p *Plot) ResetHome() {
	p.mu.Lock()
	p.home = nil
	p.mu.Unlock()
}

// AddTrusted добавляет игрока в доверенные, убирая из участников и заблокированных.
// Возвращает false, если игрок уже доверенный.
func (p *Plot) AddTrusted(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.members, id)
	delete(p.denied, id)
	return add(p.trusted, id)
}

// AddMember добавляет игрока в участники, убирая из доверенных и заблокированных.
func (p *Plot) AddMember(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.trusted, id)
	delete(p.denied, id)
	return add(p.members, id)
}

// AddDenied блокирует игрока, убирая из доверенных и участников.
func (p *Plot) AddDenied(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.trusted, id)
	delete(p.members, id)
	return add(p.denied, id)
}

func (p *Plot) RemoveTrusted(id uuid.UUID) bool { return p.remove(p.trusted, id) }
func (p *Plot) RemoveMember(id uuid.UUID) bool  { return p.remove(p.members, id) }
func (p *Plot) RemoveDenied(id uuid.UUID) bool  { return p.remove(p.denied, id) }

func (p *Plot) IsTrusted(id uuid.UUID) bool { return p.has(p.trusted, id) }
func (p *Plot) IsMember(id uuid.UUID) bool  { return p.has(p.members, id) }
func (p *Plot) IsDenied(id uuid.UUID) bool  { return p.has(p.denied, id) }

// IsOwner учитывает только прямое владение.
func (p *Plot) IsOwner(id uuid.UUID) bool { return p.Owner() == id }

func (p *Plot) Trusted() []uuid.UUID { return p.list(p.trusted) }
func (p *Plot) Members() []uuid.UUID { return p.list(p.members) }
func (p *Plot) Denied() []uuid.UUID  { return p.list(p.denied) }

func (p *Plot) remove(set map[uuid.UUID]struct{}, id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	return true
}

func (p *Plot) has(set map[uuid.UUID]struct{}, id uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := set[id]
	return ok
}

func (p *Plot) list(set map[uuid.UUID]struct{}) []uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func add(set map[uuid.UUID]struct{}, id uuid.UUID) bool {
	if _, ok := set[id]; ok {
		return false
	}
	set[id] = struct{}{}
	return true
}
