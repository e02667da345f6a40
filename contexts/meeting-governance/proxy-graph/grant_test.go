package proxygraph_test

import (
	"context"
	"errors"
	"testing"
	"time"

	proxygraph "boardroom/contexts/meeting-governance/proxy-graph"
	"boardroom/contexts/meeting-governance/proxy-graph/application/commands"
	"boardroom/contexts/meeting-governance/proxy-graph/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/proxy-graph/domain/errors"
)

func grantCmd(meetingID, grantor, holder, key string) commands.GrantProxyCommand {
	return commands.GrantProxyCommand{
		MeetingID:      meetingID,
		GrantorID:      grantor,
		HolderID:       holder,
		VotingWeight:   1,
		IdempotencyKey: key,
	}
}

func TestGrantRejectsSelfProxy(t *testing.T) {
	module := proxygraph.NewInMemoryModule(nil, nil)
	_, err := module.Grants.Grant(context.Background(), grantCmd("meeting-1", "member-a", "member-a", "idem-1"))
	if !errors.Is(err, domainerrors.ErrSelfProxy) {
		t.Fatalf("expected self proxy rejection, got %v", err)
	}
}

func TestGrantIdempotentReplay(t *testing.T) {
	module := proxygraph.NewInMemoryModule(nil, nil)

	first, err := module.Grants.Grant(context.Background(), grantCmd("meeting-1", "member-a", "member-b", "idem-1"))
	if err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	second, err := module.Grants.Grant(context.Background(), grantCmd("meeting-1", "member-a", "member-b", "idem-1"))
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !second.Replayed || second.Grant.GrantID != first.Grant.GrantID {
		t.Fatalf("expected replayed grant %s, got %s replayed=%v", first.Grant.GrantID, second.Grant.GrantID, second.Replayed)
	}

	_, err = module.Grants.Grant(context.Background(), grantCmd("meeting-1", "member-a", "member-c", "idem-1"))
	if !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict for reused key, got %v", err)
	}
}

func TestGrantSupersedesPreviousActiveGrant(t *testing.T) {
	module := proxygraph.NewInMemoryModule(nil, nil)

	first, err := module.Grants.Grant(context.Background(), grantCmd("meeting-1", "member-a", "member-b", "idem-1"))
	if err != nil {
		t.Fatalf("first grant failed: %v", err)
	}
	second, err := module.Grants.Grant(context.Background(), grantCmd("meeting-1", "member-a", "member-c", "idem-2"))
	if err != nil {
		t.Fatalf("second grant failed: %v", err)
	}
	if second.Superseded == nil || second.Superseded.GrantID != first.Grant.GrantID {
		t.Fatalf("expected first grant superseded")
	}

	holder, err := module.Resolve.EffectiveHolder(context.Background(), "meeting-1", "member-a", time.Now().UTC())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if holder != "member-c" {
		t.Fatalf("expected member-c after supersede, got %s", holder)
	}
}

func TestSubDelegationChainDepthLimit(t *testing.T) {
	module := proxygraph.NewInMemoryModule(nil, nil)

	members := []string{"m-1", "m-2", "m-3", "m-4", "m-5", "m-6", "m-7"}
	parentID := ""
	for depth := 1; depth <= entities.MaxChainDepth; depth++ {
		cmd := grantCmd("meeting-1", members[depth-1], members[depth], "idem-depth-"+members[depth])
		cmd.CanSubDelegate = true
		cmd.ParentGrantID = parentID
		result, err := module.Grants.Grant(context.Background(), cmd)
		if err != nil {
			t.Fatalf("grant at depth %d failed: %v", depth, err)
		}
		if result.Grant.ChainDepth != depth {
			t.Fatalf("expected chain depth %d, got %d", depth, result.Grant.ChainDepth)
		}
		parentID = result.Grant.GrantID
	}

	over := grantCmd("meeting-1", members[entities.MaxChainDepth], members[entities.MaxChainDepth+1], "idem-depth-over")
	over.ParentGrantID = parentID
	_, err := module.Grants.Grant(context.Background(), over)
	if !errors.Is(err, domainerrors.ErrChainTooDeep) {
		t.Fatalf("expected chain depth rejection, got %v", err)
	}
}

func TestSubDelegationRequiresParentPermission(t *testing.T) {
	module := proxygraph.NewInMemoryModule(nil, nil)

	parent, err := module.Grants.Grant(context.Background(), grantCmd("meeting-1", "member-a", "member-b", "idem-1"))
	if err != nil {
		t.Fatalf("parent grant failed: %v", err)
	}

	sub := grantCmd("meeting-1", "member-b", "member-c", "idem-2")
	sub.ParentGrantID = parent.Grant.GrantID
	_, err = module.Grants.Grant(context.Background(), sub)
	if !errors.Is(err, domainerrors.ErrSubDelegationForbidden) {
		t.Fatalf("expected sub-delegation rejection, got %v", err)
	}
}

func TestEffectiveHolderWalksChainAndAggregatesHeldGrants(t *testing.T) {
	module := proxygraph.NewInMemoryModule(nil, nil)

	cmd := grantCmd("meeting-1", "member-a", "member-b", "idem-1")
	cmd.CanSubDelegate = true
	cmd.VotingWeight = 2
	first, err := module.Grants.Grant(context.Background(), cmd)
	if err != nil {
		t.Fatalf("first grant failed: %v", err)
	}

	sub := grantCmd("meeting-1", "member-b", "member-c", "idem-2")
	sub.ParentGrantID = first.Grant.GrantID
	sub.VotingWeight = 3
	if _, err := module.Grants.Grant(context.Background(), sub); err != nil {
		t.Fatalf("sub grant failed: %v", err)
	}

	now := time.Now().UTC()
	holder, err := module.Resolve.EffectiveHolder(context.Background(), "meeting-1", "member-a", now)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if holder != "member-c" {
		t.Fatalf("expected member-c, got %s", holder)
	}

	held, err := module.Resolve.HeldGrants(context.Background(), "meeting-1", "member-c", now)
	if err != nil {
		t.Fatalf("held grants failed: %v", err)
	}
	if len(held) != 2 {
		t.Fatalf("expected 2 held grants, got %d", len(held))
	}
	if held[0].GrantorID != "member-a" || held[1].GrantorID != "member-b" {
		t.Fatalf("expected grantor-ordered held grants, got %s/%s", held[0].GrantorID, held[1].GrantorID)
	}
	if held[0].Weight != 2 || held[1].Weight != 3 {
		t.Fatalf("expected chain weights 2 and 3, got %f/%f", held[0].Weight, held[1].Weight)
	}
}

// A sub-grant conveys the sub-delegator's own authority. It must not copy
// the parent's weight, or the final holder would carry the grantor twice.
func TestSubDelegationDoesNotInheritParentWeight(t *testing.T) {
	module := proxygraph.NewInMemoryModule(nil, nil)

	cmd := grantCmd("meeting-1", "member-a", "member-b", "idem-1")
	cmd.CanSubDelegate = true
	cmd.VotingWeight = 3
	parent, err := module.Grants.Grant(context.Background(), cmd)
	if err != nil {
		t.Fatalf("parent grant failed: %v", err)
	}

	sub := grantCmd("meeting-1", "member-b", "member-c", "idem-2")
	sub.ParentGrantID = parent.Grant.GrantID
	sub.VotingWeight = 0
	child, err := module.Grants.Grant(context.Background(), sub)
	if err != nil {
		t.Fatalf("sub grant failed: %v", err)
	}
	if child.Grant.VotingWeight != 1 {
		t.Fatalf("expected sub grant default weight 1, got %f", child.Grant.VotingWeight)
	}

	now := time.Now().UTC()
	held, err := module.Resolve.HeldGrants(context.Background(), "meeting-1", "member-c", now)
	if err != nil {
		t.Fatalf("held grants failed: %v", err)
	}
	if len(held) != 2 {
		t.Fatalf("expected 2 held grants, got %d", len(held))
	}
	total := held[0].Weight + held[1].Weight
	if total != 4 {
		t.Fatalf("expected aggregate weight 4, got %f", total)
	}
}

func TestCycleDetectedOnResolve(t *testing.T) {
	module := proxygraph.NewInMemoryModule(nil, nil)

	if _, err := module.Grants.Grant(context.Background(), grantCmd("meeting-1", "member-a", "member-b", "idem-1")); err != nil {
		t.Fatalf("first grant failed: %v", err)
	}
	if _, err := module.Grants.Grant(context.Background(), grantCmd("meeting-1", "member-b", "member-a", "idem-2")); err != nil {
		t.Fatalf("second grant failed: %v", err)
	}

	_, err := module.Resolve.EffectiveHolder(context.Background(), "meeting-1", "member-a", time.Now().UTC())
	if !errors.Is(err, domainerrors.ErrCycleDetected) {
		t.Fatalf("expected cycle detection, got %v", err)
	}
}

func TestRevokeDoesNotCascadeToSubDelegations(t *testing.T) {
	module := proxygraph.NewInMemoryModule(nil, nil)

	cmd := grantCmd("meeting-1", "member-a", "member-b", "idem-1")
	cmd.CanSubDelegate = true
	parent, err := module.Grants.Grant(context.Background(), cmd)
	if err != nil {
		t.Fatalf("parent grant failed: %v", err)
	}
	sub := grantCmd("meeting-1", "member-b", "member-c", "idem-2")
	sub.ParentGrantID = parent.Grant.GrantID
	child, err := module.Grants.Grant(context.Background(), sub)
	if err != nil {
		t.Fatalf("sub grant failed: %v", err)
	}

	if err := module.Grants.Revoke(context.Background(), commands.RevokeProxyCommand{
		GrantID:   parent.Grant.GrantID,
		RevokedBy: "member-a",
		Reason:    "changed my mind",
	}); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	// Revoking a settled grant again is a no-op.
	if err := module.Grants.Revoke(context.Background(), commands.RevokeProxyCommand{
		GrantID:   parent.Grant.GrantID,
		RevokedBy: "member-a",
	}); err != nil {
		t.Fatalf("repeat revoke failed: %v", err)
	}

	now := time.Now().UTC()
	holder, err := module.Resolve.EffectiveHolder(context.Background(), "meeting-1", "member-b", now)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if holder != "member-c" {
		t.Fatalf("expected child grant to survive parent revocation, got holder %s", holder)
	}
	_ = child
}

func TestExpireSweepIsIdempotent(t *testing.T) {
	module := proxygraph.NewInMemoryModule(nil, nil)

	until := time.Now().UTC().Add(30 * time.Minute)
	cmd := grantCmd("meeting-1", "member-a", "member-b", "idem-1")
	cmd.EffectiveUntil = &until
	if _, err := module.Grants.Grant(context.Background(), cmd); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	later := until.Add(time.Minute)
	expired, err := module.Grants.ExpireSweep(context.Background(), later)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired grant, got %d", expired)
	}
	expired, err = module.Grants.ExpireSweep(context.Background(), later)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if expired != 0 {
		t.Fatalf("expected idempotent sweep, got %d", expired)
	}

	holder, err := module.Resolve.EffectiveHolder(context.Background(), "meeting-1", "member-a", later)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if holder != "member-a" {
		t.Fatalf("expected grantor to hold own vote after expiry, got %s", holder)
	}
}

func TestMarkVotesCastExhaustsBudgetedGrant(t *testing.T) {
	module := proxygraph.NewInMemoryModule(nil, nil)

	cmd := grantCmd("meeting-1", "member-a", "member-b", "idem-1")
	cmd.MaxVotesAllowed = 1
	result, err := module.Grants.Grant(context.Background(), cmd)
	if err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	if err := module.Grants.MarkVotesCast(context.Background(), []string{result.Grant.GrantID}); err != nil {
		t.Fatalf("mark votes cast failed: %v", err)
	}
	holder, err := module.Resolve.EffectiveHolder(context.Background(), "meeting-1", "member-a", time.Now().UTC())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if holder != "member-a" {
		t.Fatalf("expected exhausted grant to return authority, got %s", holder)
	}
}
