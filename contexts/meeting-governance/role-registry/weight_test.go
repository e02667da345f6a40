package roleregistry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	roleregistry "boardroom/contexts/meeting-governance/role-registry"
	"boardroom/contexts/meeting-governance/role-registry/application/commands"
	"boardroom/contexts/meeting-governance/role-registry/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/role-registry/domain/errors"
)

func role(userID, tag string, weight float64, active bool, capabilities ...string) entities.MeetingRole {
	now := time.Now().UTC()
	return entities.MeetingRole{
		MeetingID:    "meeting-1",
		UserID:       userID,
		RoleTag:      tag,
		VotingWeight: weight,
		Capabilities: capabilities,
		Active:       active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestResolveVotingWeightTakesHighestNotSum(t *testing.T) {
	module := roleregistry.NewInMemoryModule([]entities.MeetingRole{
		role("member-a", "director", 2, true, entities.CapabilityVote),
		role("member-a", "treasurer", 3, true, entities.CapabilityVote, entities.CapabilitySecond),
		role("member-a", "chair", 5, true, entities.CapabilityPreside),
	}, nil)

	weight, eligible, err := module.Weights.ResolveVotingWeight(context.Background(), "meeting-1", "member-a")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !eligible {
		t.Fatalf("expected eligible voter")
	}
	// The chair role's weight of 5 carries no vote capability; the stacked
	// voting roles yield their maximum, not 2+3.
	if weight != 3 {
		t.Fatalf("expected weight 3, got %f", weight)
	}
}

func TestResolveVotingWeightExcludesInactiveAndNonVoting(t *testing.T) {
	module := roleregistry.NewInMemoryModule([]entities.MeetingRole{
		role("member-b", "director", 2, false, entities.CapabilityVote),
		role("member-c", "observer", 1, true, entities.CapabilitySecond),
	}, nil)

	if _, eligible, err := module.Weights.ResolveVotingWeight(context.Background(), "meeting-1", "member-b"); err != nil || eligible {
		t.Fatalf("expected inactive role ineligible, got eligible=%v err=%v", eligible, err)
	}
	if _, eligible, err := module.Weights.ResolveVotingWeight(context.Background(), "meeting-1", "member-c"); err != nil || eligible {
		t.Fatalf("expected non-voting role ineligible, got eligible=%v err=%v", eligible, err)
	}
	if _, eligible, err := module.Weights.ResolveVotingWeight(context.Background(), "meeting-1", "member-z"); err != nil || eligible {
		t.Fatalf("expected unknown user ineligible, got eligible=%v err=%v", eligible, err)
	}
}

func TestListEligibleVotersDedupesByUser(t *testing.T) {
	module := roleregistry.NewInMemoryModule([]entities.MeetingRole{
		role("member-a", "director", 2, true, entities.CapabilityVote),
		role("member-a", "treasurer", 3, true, entities.CapabilityVote),
		role("member-b", "director", 1, true, entities.CapabilityVote),
		role("member-c", "observer", 1, true),
	}, nil)

	voters, err := module.Weights.ListEligibleVoters(context.Background(), "meeting-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(voters) != 2 {
		t.Fatalf("expected 2 voters, got %d", len(voters))
	}
	if voters[0].UserID != "member-a" || voters[0].Weight != 3 {
		t.Fatalf("unexpected first voter %+v", voters[0])
	}
	if voters[1].UserID != "member-b" || voters[1].Weight != 1 {
		t.Fatalf("unexpected second voter %+v", voters[1])
	}
}

func TestProjectionUpsertAndDeactivate(t *testing.T) {
	module := roleregistry.NewInMemoryModule(nil, nil)

	if _, err := module.Projection.UpsertRole(context.Background(), commands.UpsertRoleCommand{
		MeetingID: "meeting-1",
		UserID:    "member-a",
	}); !errors.Is(err, domainerrors.ErrInvalidRoleInput) {
		t.Fatalf("expected missing role tag rejection, got %v", err)
	}

	if _, err := module.Projection.UpsertRole(context.Background(), commands.UpsertRoleCommand{
		MeetingID:    "meeting-1",
		UserID:       "member-a",
		RoleTag:      "director",
		VotingWeight: 2,
		Capabilities: []string{entities.CapabilityVote},
		Active:       true,
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	weight, eligible, err := module.Weights.ResolveVotingWeight(context.Background(), "meeting-1", "member-a")
	if err != nil || !eligible || weight != 2 {
		t.Fatalf("expected eligible weight 2, got %f/%v/%v", weight, eligible, err)
	}

	if err := module.Projection.DeactivateRole(context.Background(), "meeting-1", "member-a", "director"); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, eligible, err := module.Weights.ResolveVotingWeight(context.Background(), "meeting-1", "member-a"); err != nil || eligible {
		t.Fatalf("expected deactivated role ineligible, got eligible=%v err=%v", eligible, err)
	}

	if err := module.Projection.DeactivateRole(context.Background(), "meeting-1", "member-z", "director"); !errors.Is(err, domainerrors.ErrRoleNotFound) {
		t.Fatalf("expected unknown role rejection, got %v", err)
	}
}
