// Package identity сопоставляет введённые игроком имена со стабильными UUID.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTimeout - поиск не уложился в отведённое время. Отличается от «не найдено»,
	// которое возвращается как пустой список без ошибки.
	ErrTimeout = errors.New("identity: истекло время поиска игрока")

	// Everyone - особый идентификатор «все игроки».
	Everyone = uuid.MustParse("00000001-0001-0003-0003-000000000007")
)

// Wildcard - токен, обозначающий Everyone.
const Wildcard = "*"

// Resolver превращает токен (имя, UUID, "*" или список через запятую) в набор UUID.
type Resolver interface {
	Resolve(ctx context.Context, token string) ([]uuid.UUID, error)
}

// Lookup ищет одного игрока по имени.
type Lookup interface {
	Lookup(ctx context.Context, name string) (uuid.UUID, bool, error)
}

type lookupResolver struct {
	lookup  Lookup
	timeout time.Duration
}

// NewResolver строит Resolver поверх поиска по имени. timeout <= 0 отключает
// собственное ограничение времени (остаётся дедлайн ctx).
func NewResolver(l Lookup, timeout time.Duration) Resolver {
	return &lookupResolver{lookup: l, timeout: timeout}
}

func (r *lookupResolver) Resolve(ctx context.Context, token string) ([]uuid.UUID, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	for _, name := range strings.Split(token, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == Wildcard {
			add(Everyone)
			continue
		}
		if id, err := uuid.Parse(name); err == nil {
			add(id)
			continue
		}

		id, ok, err := r.lookup.Lookup(ctx, name)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrTimeout, name)
			}
			return nil, fmt.Errorf("поиск игрока %s: %w", name, err)
		}
		if ok {
			add(id)
		}
	}
	return out, nil
}
