package plot

import (
	"context"
	"errors"
	"fmt"

	"github.com/AgaveCraft/PlotSquared/internal/eventbus"
	"github.com/AgaveCraft/PlotSquared/internal/identity"
	"github.com/AgaveCraft/PlotSquared/internal/logging"
	"github.com/google/uuid"
)

var (
	ErrNotOwner       = errors.New("plot: действие доступно только владельцу")
	ErrInvalidPlayer  = errors.New("plot: игрок не найден")
	ErrTimeout        = errors.New("plot: поиск игрока превысил время ожидания")
	ErrNothingToAdd   = errors.New("plot: некого добавлять")
	ErrTooManyTrusted = errors.New("plot: превышен лимит доверенных игроков")
	ErrNotConfirmed   = errors.New("plot: действие не подтверждено")
)

// SkipReason объясняет, почему игрок не был добавлен.
type SkipReason string

const (
	SkipOwner         SkipReason = "owner"
	SkipAlreadyAdded  SkipReason = "already_added"
	SkipNoEveryoneCap SkipReason = "no_permission_everyone"
)

// Actor - игрок, выполняющий действие, и его права.
type Actor struct {
	ID uuid.UUID
	// Admin разрешает действия над чужими плотами.
	Admin bool
	// TrustEveryone разрешает добавлять особый идентификатор «все».
	TrustEveryone bool
	// MaxTrusted переопределяет лимит сервиса, если больше нуля.
	MaxTrusted int
}

// TrustResult - итог операции.
type TrustResult struct {
	Added   []uuid.UUID              `json:"added"`
	Skipped map[uuid.UUID]SkipReason `json:"skipped,omitempty"`
}

// ConfirmFunc спрашивает подтверждение перед изменением плота.
type ConfirmFunc func(ctx context.Context, actor Actor, p *Plot, ids []uuid.UUID) bool

// TrustService добавляет игроков в доверенные плота.
type TrustService struct {
	resolver   identity.Resolver
	repo       Repository
	maxTrusted int
	log        *logging.Logger

	// Confirm, если задан, вызывается перед применением изменений.
	Confirm ConfirmFunc
}

// NewTrustService создаёт сервис. repo может быть nil, тогда изменения не сохраняются.
func NewTrustService(resolver identity.Resolver, repo Repository, maxTrusted int) *TrustService {
	return &TrustService{
		resolver:   resolver,
		repo:       repo,
		maxTrusted: maxTrusted,
		log:        logging.GetPlotLogger(),
	}
}

// Trust разрешает token в игроков и добавляет их в доверенные плота p.
func (s *TrustService) Trust(ctx context.Context, actor Actor, p *Plot, token string) (*TrustResult, error) {
	if !actor.Admin && !p.IsOwner(actor.ID) {
		return nil, ErrNotOwner
	}

	ids, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, identity.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, token)
		}
		return nil, fmt.Errorf("поиск игроков %q: %w", token, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlayer, token)
	}

	res := &TrustResult{Skipped: make(map[uuid.UUID]SkipReason)}
	var add []uuid.UUID
	for _, id := range ids {
		switch {
		case id == identity.Everyone && !actor.TrustEveryone:
			res.Skipped[id] = SkipNoEveryoneCap
		case p.IsOwner(id):
			res.Skipped[id] = SkipOwner
		case p.IsTrusted(id):
			res.Skipped[id] = SkipAlreadyAdded
		default:
			add = append(add, id)
		}
	}
	if len(add) == 0 {
		return res, ErrNothingToAdd
	}

	limit := s.maxTrusted
	if actor.MaxTrusted > 0 {
		limit = actor.MaxTrusted
	}
	if limit > 0 && !actor.Admin {
		if total := len(p.Trusted()) + len(p.Members()) + len(add); total > limit {
			return res, fmt.Errorf("%w: %d > %d", ErrTooManyTrusted, total, limit)
		}
	}

	if s.Confirm != nil && !s.Confirm(ctx, actor, p, add) {
		return res, ErrNotConfirmed
	}

	for _, id := range add {
		p.AddTrusted(id)
	}
	res.Added = add

	if s.repo != nil {
		if err := s.repo.Save(ctx, p); err != nil {
			return res, fmt.Errorf("сохранение плота %s: %w", p.ID(), err)
		}
	}

	s.log.Info("🤝 Плот %s/%s: добавлены доверенные %v", p.World(), p.ID(), add)
	payload := eventbus.PlotTrusted{
		World: p.World(),
		Plot:  p.ID().String(),
		Actor: actor.ID.String(),
		Added: uuidStrings(add),
	}
	if err := eventbus.Emit(eventbus.TypePlotTrusted, payload, map[string]string{"world": p.World()}); err != nil {
		s.log.Warn("⚠️ Не удалось опубликовать событие %s: %v", eventbus.TypePlotTrusted, err)
	}
	return res, nil
}
