package plot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AgaveCraft/PlotSquared/internal/identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	saved int
	err   error
}

func (r *countingRepo) Save(context.Context, *Plot) error { r.saved++; return r.err }
func (r *countingRepo) Load(context.Context, *Area, ID) (*Plot, error) {
	return nil, ErrNotFound
}
func (r *countingRepo) Delete(context.Context, string, ID) error     { return nil }
func (r *countingRepo) List(context.Context, *Area) ([]*Plot, error)    { return nil, nil }

type trustFixture struct {
	owner  uuid.UUID
	alice  uuid.UUID
	bob    uuid.UUID
	lookup *identity.MemoryLookup
	repo   *countingRepo
	svc    *TrustService
	plot   *Plot
}

func newTrustFixture(maxTrusted int) *trustFixture {
	f := &trustFixture{
		owner:  uuid.New(),
		alice:  uuid.New(),
		bob:    uuid.New(),
		lookup: identity.NewMemoryLookup(),
		repo:   &countingRepo{},
	}
	f.lookup.Register("owner", f.owner)
	f.lookup.Register("alice", f.alice)
	f.lookup.Register("bob", f.bob)
	f.svc = NewTrustService(identity.NewResolver(f.lookup, 50*time.Millisecond), f.repo, maxTrusted)
	f.plot = New(ID{0, 0}, testArea(), f.owner)
	return f
}

func TestTrustAddsAndMovesFromMembers(t *testing.T) {
	f := newTrustFixture(10)
	f.plot.AddMember(f.alice)
	f.plot.AddDenied(f.bob)

	res, err := f.svc.Trust(context.Background(), Actor{ID: f.owner}, f.plot, "alice,bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{f.alice, f.bob}, res.Added)
	assert.True(t, f.plot.IsTrusted(f.alice))
	assert.False(t, f.plot.IsMember(f.alice))
	assert.False(t, f.plot.IsDenied(f.bob))
	assert.Equal(t, 1, f.repo.saved)
}

func TestTrustSkipsOwnerAndExisting(t *testing.T) {
	f := newTrustFixture(10)
	f.plot.AddTrusted(f.alice)

	res, err := f.svc.Trust(context.Background(), Actor{ID: f.owner}, f.plot, "owner,alice")
	assert.ErrorIs(t, err, ErrNothingToAdd)
	require.NotNil(t, res)
	assert.Equal(t, SkipOwner, res.Skipped[f.owner])
	assert.Equal(t, SkipAlreadyAdded, res.Skipped[f.alice])
	assert.Zero(t, f.repo.saved)
}

func TestTrustEveryoneNeedsCapability(t *testing.T) {
	f := newTrustFixture(10)

	res, err := f.svc.Trust(context.Background(), Actor{ID: f.owner}, f.plot, "*")
	assert.ErrorIs(t, err, ErrNothingToAdd)
	assert.Equal(t, SkipNoEveryoneCap, res.Skipped[identity.Everyone])

	_, err = f.svc.Trust(context.Background(), Actor{ID: f.owner, TrustEveryone: true}, f.plot, "*")
	require.NoError(t, err)
	assert.True(t, f.plot.IsTrusted(identity.Everyone))
}

func TestTrustLimitCountsMembers(t *testing.T) {
	f := newTrustFixture(2)
	f.plot.AddMember(uuid.New())
	f.plot.AddTrusted(uuid.New())

	_, err := f.svc.Trust(context.Background(), Actor{ID: f.owner}, f.plot, "alice")
	assert.ErrorIs(t, err, ErrTooManyTrusted)
	assert.False(t, f.plot.IsTrusted(f.alice))

	_, err = f.svc.Trust(context.Background(), Actor{ID: f.owner, MaxTrusted: 5}, f.plot, "alice")
	assert.NoError(t, err)
}

func TestTrustErrors(t *testing.T) {
	f := newTrustFixture(10)

	_, err := f.svc.Trust(context.Background(), Actor{ID: uuid.New()}, f.plot, "alice")
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = f.svc.Trust(context.Background(), Actor{ID: f.owner}, f.plot, "nobody")
	assert.ErrorIs(t, err, ErrInvalidPlayer)

	f.lookup.Delay = time.Second
	_, err = f.svc.Trust(context.Background(), Actor{ID: f.owner}, f.plot, "alice")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, errors.Is(err, ErrInvalidPlayer), "таймаут отличается от «не найден»")
}

func TestTrustConfirmation(t *testing.T) {
	f := newTrustFixture(10)
	var asked []uuid.UUID
	f.svc.Confirm = func(_ context.Context, _ Actor, _ *Plot, ids []uuid.UUID) bool {
		asked = ids
		return false
	}

	_, err := f.svc.Trust(context.Background(), Actor{ID: f.owner}, f.plot, "bob")
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Equal(t, []uuid.UUID{f.bob}, asked)
	assert.False(t, f.plot.IsTrusted(f.bob))
}
