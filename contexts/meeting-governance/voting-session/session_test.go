package votingsession_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	votingsession "boardroom/contexts/meeting-governance/voting-session"
	"boardroom/contexts/meeting-governance/voting-session/application/commands"
	"boardroom/contexts/meeting-governance/voting-session/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/voting-session/domain/errors"
	"boardroom/contexts/meeting-governance/voting-session/ports"
)

type fakeGate struct {
	mu       sync.Mutex
	beginErr error
	attached map[string]string
	ended    []string
}

func newFakeGate() *fakeGate {
	return &fakeGate{attached: make(map[string]string)}
}

func (g *fakeGate) BeginVoting(_ context.Context, instanceID string, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.beginErr != nil {
		return g.beginErr
	}
	g.attached[instanceID] = sessionID
	return nil
}

func (g *fakeGate) EndVoting(_ context.Context, instanceID string, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attached, instanceID)
	g.ended = append(g.ended, sessionID)
	return nil
}

type fakeRoles struct {
	weights map[string]float64
}

func (r fakeRoles) ResolveVotingWeight(_ context.Context, _ string, userID string) (float64, bool, error) {
	weight, ok := r.weights[userID]
	return weight, ok, nil
}

func (r fakeRoles) ListEligibleVoters(_ context.Context, _ string) ([]ports.EligibleVoter, error) {
	voters := make([]ports.EligibleVoter, 0, len(r.weights))
	for userID, weight := range r.weights {
		voters = append(voters, ports.EligibleVoter{UserID: userID, Weight: weight})
	}
	return voters, nil
}

type fakeProxies struct {
	mu        sync.Mutex
	delegated map[string]string
	held      map[string][]ports.HeldGrant
	marked    []string
}

func (p *fakeProxies) EffectiveHolder(_ context.Context, _ string, grantorID string, _ time.Time) (string, error) {
	if holder, ok := p.delegated[grantorID]; ok {
		return holder, nil
	}
	return grantorID, nil
}

func (p *fakeProxies) HeldGrants(_ context.Context, _ string, holderID string, _ time.Time) ([]ports.HeldGrant, error) {
	return p.held[holderID], nil
}

func (p *fakeProxies) MarkVotesCast(_ context.Context, grantID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marked = append(p.marked, grantID)
	return nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	failures int
	records  []ports.OutcomeRecord
}

func (r *fakeRecorder) RecordOutcome(_ context.Context, record ports.OutcomeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("registry unavailable")
	}
	r.records = append(r.records, record)
	return nil
}

func newVotingFixture(recorder *fakeRecorder) (votingsession.Module, *fakeGate, *fakeProxies) {
	gate := newFakeGate()
	proxies := &fakeProxies{
		delegated: make(map[string]string),
		held:      make(map[string][]ports.HeldGrant),
	}
	roles := fakeRoles{weights: map[string]float64{
		"member-a": 1,
		"member-b": 1,
		"member-c": 1,
	}}
	if recorder == nil {
		recorder = &fakeRecorder{}
	}
	module := votingsession.NewInMemoryModule(gate, roles, proxies, recorder, nil)
	return module, gate, proxies
}

func openSession(t *testing.T, module votingsession.Module, quorum int, threshold float64, anonymity entities.AnonymityLevel, items []commands.OpenSessionItem) (entities.VotingSession, []entities.SessionItem) {
	t.Helper()
	session, opened, err := module.Sessions.OpenSession(context.Background(), commands.OpenSessionCommand{
		MeetingID:            "meeting-1",
		WorkflowInstanceID:   "instance-1",
		Title:                "budget votes",
		Items:                items,
		Anonymity:            anonymity,
		QuorumRequired:       quorum,
		PassThresholdPercent: threshold,
		OpenedBy:             "chair-1",
	})
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	return session, opened
}

func TestOpenSessionClaimsWorkflowGate(t *testing.T) {
	module, gate, _ := newVotingFixture(nil)
	session, items := openSession(t, module, 2, 50, "", []commands.OpenSessionItem{
		{ResolutionID: "res-1", Title: "adopt budget"},
	})
	if session.Anonymity != entities.AnonymityPublic {
		t.Fatalf("expected public default anonymity, got %s", session.Anonymity)
	}
	if session.Round != 1 {
		t.Fatalf("expected round 1 default, got %d", session.Round)
	}
	if len(items) != 1 || items[0].Ordinal != 1 {
		t.Fatalf("unexpected items %+v", items)
	}
	if gate.attached["instance-1"] != session.SessionID {
		t.Fatalf("expected session attached to workflow gate")
	}
}

func TestOpenSessionPropagatesGateRefusal(t *testing.T) {
	module, gate, _ := newVotingFixture(nil)
	gate.beginErr = errors.New("stage is not a voting stage")

	_, _, err := module.Sessions.OpenSession(context.Background(), commands.OpenSessionCommand{
		MeetingID:          "meeting-1",
		WorkflowInstanceID: "instance-1",
		Items:              []commands.OpenSessionItem{{Title: "adopt budget"}},
		OpenedBy:           "chair-1",
	})
	if err == nil || err.Error() != "stage is not a voting stage" {
		t.Fatalf("expected gate refusal to surface, got %v", err)
	}
}

func TestOpenSessionRejectsPastDeadline(t *testing.T) {
	module, _, _ := newVotingFixture(nil)
	past := time.Now().UTC().Add(-time.Minute)
	_, _, err := module.Sessions.OpenSession(context.Background(), commands.OpenSessionCommand{
		MeetingID:          "meeting-1",
		WorkflowInstanceID: "instance-1",
		Items:              []commands.OpenSessionItem{{Title: "adopt budget"}},
		Deadline:           &past,
		OpenedBy:           "chair-1",
	})
	if !errors.Is(err, domainerrors.ErrInvalidSessionInput) {
		t.Fatalf("expected invalid deadline, got %v", err)
	}
}

func TestCastBallotAggregatesProxyWeight(t *testing.T) {
	module, _, proxies := newVotingFixture(nil)
	proxies.held["member-c"] = []ports.HeldGrant{
		{GrantID: "grant-1", GrantorID: "member-a", Weight: 2},
		{GrantID: "grant-2", GrantorID: "member-b", Weight: 3},
	}

	_, items := openSession(t, module, 1, 50, entities.AnonymityPublic, []commands.OpenSessionItem{
		{ResolutionID: "res-1", Title: "adopt budget"},
	})

	result, err := module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
		SessionID:      items[0].SessionID,
		ItemID:         items[0].ItemID,
		VoterID:        "member-c",
		Choice:         entities.ChoiceFor,
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	if result.OwnWeight != 1 || result.ProxyWeight != 5 {
		t.Fatalf("expected weights 1/5, got %f/%f", result.OwnWeight, result.ProxyWeight)
	}
	if len(result.GrantIDs) != 2 {
		t.Fatalf("expected 2 grants on ballot, got %d", len(result.GrantIDs))
	}
	if len(proxies.marked) != 2 {
		t.Fatalf("expected both grants marked, got %v", proxies.marked)
	}

	replay, err := module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
		SessionID:      items[0].SessionID,
		ItemID:         items[0].ItemID,
		VoterID:        "member-c",
		Choice:         entities.ChoiceFor,
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !replay.Replayed || replay.BallotID != result.BallotID {
		t.Fatalf("expected idempotent replay of ballot %s", result.BallotID)
	}

	_, err = module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
		SessionID:      items[0].SessionID,
		ItemID:         items[0].ItemID,
		VoterID:        "member-c",
		Choice:         entities.ChoiceAgainst,
		IdempotencyKey: "idem-2",
	})
	if !errors.Is(err, domainerrors.ErrDuplicateBallot) {
		t.Fatalf("expected duplicate ballot, got %v", err)
	}
}

func TestCastBallotRejectsDelegatedAndIneligibleVoters(t *testing.T) {
	module, _, proxies := newVotingFixture(nil)
	proxies.delegated["member-a"] = "member-b"

	_, items := openSession(t, module, 1, 50, entities.AnonymityPublic, []commands.OpenSessionItem{
		{Title: "adopt budget"},
	})

	_, err := module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
		SessionID:      items[0].SessionID,
		ItemID:         items[0].ItemID,
		VoterID:        "member-a",
		Choice:         entities.ChoiceFor,
		IdempotencyKey: "idem-1",
	})
	if !errors.Is(err, domainerrors.ErrVoteDelegated) {
		t.Fatalf("expected delegated voter rejection, got %v", err)
	}

	_, err = module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
		SessionID:      items[0].SessionID,
		ItemID:         items[0].ItemID,
		VoterID:        "stranger-1",
		Choice:         entities.ChoiceFor,
		IdempotencyKey: "idem-2",
	})
	if !errors.Is(err, domainerrors.ErrVoterNotEligible) {
		t.Fatalf("expected eligibility rejection, got %v", err)
	}

	_, err = module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
		SessionID: items[0].SessionID,
		ItemID:    items[0].ItemID,
		VoterID:   "member-b",
		Choice:    entities.ChoiceFor,
	})
	if !errors.Is(err, domainerrors.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected idempotency key requirement, got %v", err)
	}
}

// A holder with no seat of their own, such as outside counsel carrying a
// member's proxy, still casts the grants they hold. Own weight stays zero.
func TestProxyOnlyHolderCastsHeldGrants(t *testing.T) {
	module, _, proxies := newVotingFixture(nil)
	proxies.held["counsel-1"] = []ports.HeldGrant{
		{GrantID: "grant-1", GrantorID: "member-a", Weight: 2},
	}

	session, items := openSession(t, module, 1, 50, entities.AnonymityPublic, []commands.OpenSessionItem{
		{ResolutionID: "res-1", Title: "adopt budget"},
	})

	result, err := module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
		SessionID:      session.SessionID,
		ItemID:         items[0].ItemID,
		VoterID:        "counsel-1",
		Choice:         entities.ChoiceFor,
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("proxy-only cast failed: %v", err)
	}
	if result.OwnWeight != 0 || result.ProxyWeight != 2 {
		t.Fatalf("expected weights 0/2, got %f/%f", result.OwnWeight, result.ProxyWeight)
	}

	tallied, err := module.Sessions.CloseSession(context.Background(), commands.CloseSessionCommand{
		SessionID: session.SessionID,
		ClosedBy:  "chair-1",
	})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if tallied[0].ForWeight != 2 {
		t.Fatalf("expected held weight tallied, got %f", tallied[0].ForWeight)
	}
}

func TestConcurrentDuplicateCastSingleBallot(t *testing.T) {
	module, _, _ := newVotingFixture(nil)
	_, items := openSession(t, module, 1, 50, entities.AnonymityPublic, []commands.OpenSessionItem{
		{Title: "adopt budget"},
	})

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i, key := range []string{"idem-1", "idem-2"} {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			_, err := module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
				SessionID:      items[0].SessionID,
				ItemID:         items[0].ItemID,
				VoterID:        "member-a",
				Choice:         entities.ChoiceFor,
				IdempotencyKey: key,
			})
			results <- err
		}(i, key)
	}
	wg.Wait()
	close(results)

	wins, duplicates := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domainerrors.ErrDuplicateBallot):
			duplicates++
		default:
			t.Fatalf("unexpected cast error: %v", err)
		}
	}
	if wins != 1 || duplicates != 1 {
		t.Fatalf("expected one ballot and one duplicate, got %d/%d", wins, duplicates)
	}
}

func TestCloseSessionTallyAndThreshold(t *testing.T) {
	recorder := &fakeRecorder{}
	module, gate, _ := newVotingFixture(recorder)
	session, items := openSession(t, module, 2, 50, entities.AnonymityPublic, []commands.OpenSessionItem{
		{ResolutionID: "res-1", Title: "exactly at threshold"},
		{ResolutionID: "res-2", Title: "abstain only"},
		{ResolutionID: "res-3", Title: "below quorum"},
	})

	cast := func(itemID, voter string, choice entities.BallotChoice, key string) {
		t.Helper()
		if _, err := module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
			SessionID:      session.SessionID,
			ItemID:         itemID,
			VoterID:        voter,
			Choice:         choice,
			IdempotencyKey: key,
		}); err != nil {
			t.Fatalf("cast %s/%s failed: %v", itemID, voter, err)
		}
	}

	// Item 1: 1 for vs 1 against is exactly 50% and quorum of two voters.
	cast(items[0].ItemID, "member-a", entities.ChoiceFor, "k1")
	cast(items[0].ItemID, "member-b", entities.ChoiceAgainst, "k2")
	// Item 2: abstentions meet quorum but carry no decisive weight.
	cast(items[1].ItemID, "member-a", entities.ChoiceAbstain, "k3")
	cast(items[1].ItemID, "member-b", entities.ChoiceAbstain, "k4")
	// Item 3: a single unanimous voter still misses quorum.
	cast(items[2].ItemID, "member-a", entities.ChoiceFor, "k5")

	tallied, err := module.Sessions.CloseSession(context.Background(), commands.CloseSessionCommand{
		SessionID: session.SessionID,
		ClosedBy:  "chair-1",
	})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if len(tallied) != 3 {
		t.Fatalf("expected 3 tallied items, got %d", len(tallied))
	}

	byTitle := map[string]entities.SessionItem{}
	for _, item := range tallied {
		byTitle[item.Title] = item
	}
	if item := byTitle["exactly at threshold"]; !item.Passed || !item.QuorumMet || item.ForWeight != 1 || item.AgainstWeight != 1 {
		t.Fatalf("expected inclusive threshold pass, got %+v", item)
	}
	if item := byTitle["abstain only"]; item.Passed || item.AbstainWeight != 2 {
		t.Fatalf("expected abstain-only item to fail, got %+v", item)
	}
	if item := byTitle["below quorum"]; item.Passed || item.QuorumMet {
		t.Fatalf("expected quorum failure, got %+v", item)
	}

	if len(recorder.records) != 3 {
		t.Fatalf("expected 3 recorded outcomes, got %d", len(recorder.records))
	}
	if len(gate.ended) != 1 || gate.ended[0] != session.SessionID {
		t.Fatalf("expected gate released once, got %v", gate.ended)
	}

	// Closing a completed session returns the same results.
	again, err := module.Sessions.CloseSession(context.Background(), commands.CloseSessionCommand{
		SessionID: session.SessionID,
		ClosedBy:  "chair-1",
	})
	if err != nil {
		t.Fatalf("re-close failed: %v", err)
	}
	if len(again) != 3 {
		t.Fatalf("expected re-entrant close to return items, got %d", len(again))
	}
	if len(recorder.records) != 3 {
		t.Fatalf("re-entrant close must not re-record outcomes")
	}
}

func TestCloseSessionRetriesAfterTallyFailure(t *testing.T) {
	recorder := &fakeRecorder{failures: 1}
	module, _, _ := newVotingFixture(recorder)
	session, items := openSession(t, module, 1, 50, entities.AnonymityPublic, []commands.OpenSessionItem{
		{ResolutionID: "res-1", Title: "adopt budget"},
	})
	if _, err := module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
		SessionID:      session.SessionID,
		ItemID:         items[0].ItemID,
		VoterID:        "member-a",
		Choice:         entities.ChoiceFor,
		IdempotencyKey: "k1",
	}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	_, err := module.Sessions.CloseSession(context.Background(), commands.CloseSessionCommand{
		SessionID: session.SessionID,
		ClosedBy:  "chair-1",
	})
	if !errors.Is(err, domainerrors.ErrTallyFailed) {
		t.Fatalf("expected tally failure, got %v", err)
	}
	stuck, err := module.Store.GetSession(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if stuck.Status != entities.SessionStatusCounting {
		t.Fatalf("expected counting after tally failure, got %s", stuck.Status)
	}

	tallied, err := module.Sessions.CloseSession(context.Background(), commands.CloseSessionCommand{
		SessionID: session.SessionID,
		ClosedBy:  "chair-1",
	})
	if err != nil {
		t.Fatalf("retry close failed: %v", err)
	}
	if len(tallied) != 1 || !tallied[0].Passed {
		t.Fatalf("expected retried close to decide the item, got %+v", tallied)
	}
	if len(recorder.records) != 1 {
		t.Fatalf("expected one recorded outcome, got %d", len(recorder.records))
	}
}

// The electorate is snapshotted when the session opens; a tally that counts
// more participants than the snapshot is refused instead of certified.
func TestCloseSessionRefusesMoreBallotsThanElectorate(t *testing.T) {
	module, _, _ := newVotingFixture(nil)
	session, items := openSession(t, module, 1, 50, entities.AnonymityPublic, []commands.OpenSessionItem{
		{ResolutionID: "res-1", Title: "adopt budget"},
	})
	if session.EligibleVoterCount != 3 {
		t.Fatalf("expected electorate of 3, got %d", session.EligibleVoterCount)
	}

	for i, voter := range []string{"member-a", "member-b", "member-c", "ghost-1"} {
		if err := module.Store.SaveBallot(context.Background(), entities.Ballot{
			BallotID:  "seed-" + voter,
			SessionID: session.SessionID,
			ItemID:    items[0].ItemID,
			VoterID:   voter,
			Choice:    entities.ChoiceFor,
			OwnWeight: 1,
			Round:     session.Round,
			CastAt:    time.Now().UTC().Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("seed ballot failed: %v", err)
		}
	}

	_, err := module.Sessions.CloseSession(context.Background(), commands.CloseSessionCommand{
		SessionID: session.SessionID,
		ClosedBy:  "chair-1",
	})
	if !errors.Is(err, domainerrors.ErrTallyFailed) {
		t.Fatalf("expected tally refusal, got %v", err)
	}
	stuck, err := module.Store.GetSession(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if stuck.Status != entities.SessionStatusCounting {
		t.Fatalf("expected counting after refusal, got %s", stuck.Status)
	}
}

// Absent ballots record the roll call only: no tally weight and no part in
// the quorum count.
func TestAbsentBallotsDoNotCountTowardQuorum(t *testing.T) {
	module, _, _ := newVotingFixture(nil)
	session, items := openSession(t, module, 2, 50, entities.AnonymityPublic, []commands.OpenSessionItem{
		{ResolutionID: "res-1", Title: "adopt budget"},
	})

	cast := func(voter string, choice entities.BallotChoice, key string) {
		t.Helper()
		if _, err := module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
			SessionID:      session.SessionID,
			ItemID:         items[0].ItemID,
			VoterID:        voter,
			Choice:         choice,
			IdempotencyKey: key,
		}); err != nil {
			t.Fatalf("cast %s failed: %v", voter, err)
		}
	}
	cast("member-a", entities.ChoiceFor, "k1")
	cast("member-b", entities.ChoiceAbsent, "k2")

	tallied, err := module.Sessions.CloseSession(context.Background(), commands.CloseSessionCommand{
		SessionID: session.SessionID,
		ClosedBy:  "chair-1",
	})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	item := tallied[0]
	if item.VoterCount != 1 {
		t.Fatalf("expected absent ballot outside voter count, got %d", item.VoterCount)
	}
	if item.QuorumMet || item.Passed {
		t.Fatalf("expected quorum failure with one participant, got %+v", item)
	}
	if item.ForWeight != 1 || item.AgainstWeight != 0 || item.AbstainWeight != 0 {
		t.Fatalf("expected absent ballot weightless, got %+v", item)
	}
}

// A retry whose idempotency record was lost after the ballot insert is
// recognized by the key stored on the ballot row and replayed, while a
// genuinely different submission stays a duplicate.
func TestCastRetryRecoversFromLostIdempotencyRecord(t *testing.T) {
	module, _, _ := newVotingFixture(nil)
	session, items := openSession(t, module, 1, 50, entities.AnonymityPublic, []commands.OpenSessionItem{
		{ResolutionID: "res-1", Title: "adopt budget"},
	})

	// The ballot exists but the idempotency record was never written.
	if err := module.Store.SaveBallot(context.Background(), entities.Ballot{
		BallotID:       "ballot-orig",
		SessionID:      session.SessionID,
		ItemID:         items[0].ItemID,
		VoterID:        "member-a",
		Choice:         entities.ChoiceFor,
		OwnWeight:      1,
		Round:          session.Round,
		IdempotencyKey: "k1",
		CastAt:         time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed ballot failed: %v", err)
	}

	retry, err := module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
		SessionID:      session.SessionID,
		ItemID:         items[0].ItemID,
		VoterID:        "member-a",
		Choice:         entities.ChoiceFor,
		IdempotencyKey: "k1",
	})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !retry.Replayed || retry.BallotID != "ballot-orig" {
		t.Fatalf("expected replay of original ballot, got %+v", retry)
	}

	// The recovered record now serves later retries too.
	again, err := module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
		SessionID:      session.SessionID,
		ItemID:         items[0].ItemID,
		VoterID:        "member-a",
		Choice:         entities.ChoiceFor,
		IdempotencyKey: "k1",
	})
	if err != nil || !again.Replayed {
		t.Fatalf("expected replay from recovered record, got %+v/%v", again, err)
	}

	_, err = module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
		SessionID:      session.SessionID,
		ItemID:         items[0].ItemID,
		VoterID:        "member-a",
		Choice:         entities.ChoiceFor,
		IdempotencyKey: "k2",
	})
	if !errors.Is(err, domainerrors.ErrDuplicateBallot) {
		t.Fatalf("expected duplicate for new key, got %v", err)
	}
}

func TestCancelSessionOnlyWhileOpen(t *testing.T) {
	module, gate, _ := newVotingFixture(nil)
	session, _ := openSession(t, module, 1, 50, entities.AnonymityPublic, []commands.OpenSessionItem{
		{Title: "adopt budget"},
	})

	if err := module.Sessions.CancelSession(context.Background(), commands.CancelSessionCommand{
		SessionID:   session.SessionID,
		CancelledBy: "chair-1",
		Reason:      "meeting adjourned",
	}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if len(gate.ended) != 1 {
		t.Fatalf("expected gate released on cancel")
	}
	// Cancelling again is a no-op.
	if err := module.Sessions.CancelSession(context.Background(), commands.CancelSessionCommand{
		SessionID: session.SessionID,
	}); err != nil {
		t.Fatalf("repeat cancel failed: %v", err)
	}
	if _, err := module.Sessions.CloseSession(context.Background(), commands.CloseSessionCommand{
		SessionID: session.SessionID,
	}); !errors.Is(err, domainerrors.ErrSessionSettled) {
		t.Fatalf("expected settled session on close, got %v", err)
	}

	completed, _ := openSession(t, module, 0, 50, entities.AnonymityPublic, []commands.OpenSessionItem{
		{Title: "second motion"},
	})
	if _, err := module.Sessions.CloseSession(context.Background(), commands.CloseSessionCommand{
		SessionID: completed.SessionID,
	}); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := module.Sessions.CancelSession(context.Background(), commands.CancelSessionCommand{
		SessionID: completed.SessionID,
	}); !errors.Is(err, domainerrors.ErrSessionNotOpen) {
		t.Fatalf("expected cancel rejection on completed session, got %v", err)
	}
}

// A passed deadline stops ballots but never decides the session: the sweep
// flags it once and closing remains an explicit action.
func TestDeadlineSweepFlagsWithoutClosing(t *testing.T) {
	module, _, _ := newVotingFixture(nil)
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	session := entities.VotingSession{
		SessionID:            "session-expired",
		MeetingID:            "meeting-1",
		WorkflowInstanceID:   "instance-1",
		Status:               entities.SessionStatusOpen,
		Anonymity:            entities.AnonymityPublic,
		EligibleVoterCount:   3,
		PassThresholdPercent: 50,
		Round:                1,
		Deadline:             &past,
		OpenedBy:             "chair-1",
		OpenedAt:             past.Add(-time.Hour),
		CreatedAt:            past.Add(-time.Hour),
		UpdatedAt:            past.Add(-time.Hour),
	}
	if err := module.Store.CreateSession(context.Background(), session, []entities.SessionItem{
		{ItemID: "item-1", SessionID: session.SessionID, Title: "expired motion", Ordinal: 1},
	}); err != nil {
		t.Fatalf("seed session failed: %v", err)
	}

	_, err := module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
		SessionID:      session.SessionID,
		ItemID:         "item-1",
		VoterID:        "member-a",
		Choice:         entities.ChoiceFor,
		IdempotencyKey: "k1",
	})
	if !errors.Is(err, domainerrors.ErrDeadlinePassed) {
		t.Fatalf("expected deadline rejection, got %v", err)
	}

	notified, err := module.Sessions.SweepDeadlines(context.Background(), now)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if notified != 1 {
		t.Fatalf("expected 1 flagged session, got %d", notified)
	}
	swept, err := module.Store.GetSession(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if swept.Status != entities.SessionStatusOpen {
		t.Fatalf("expected session still open after sweep, got %s", swept.Status)
	}
	if !swept.DeadlineNotified {
		t.Fatalf("expected session flagged by sweep")
	}

	// The flag makes the sweep idempotent.
	again, err := module.Sessions.SweepDeadlines(context.Background(), now)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected no sessions on repeat sweep, got %d", again)
	}

	tallied, err := module.Sessions.CloseSession(context.Background(), commands.CloseSessionCommand{
		SessionID: session.SessionID,
		ClosedBy:  "chair-1",
	})
	if err != nil {
		t.Fatalf("explicit close failed: %v", err)
	}
	if len(tallied) != 1 {
		t.Fatalf("expected 1 tallied item, got %d", len(tallied))
	}
	closed, err := module.Store.GetSession(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if closed.Status != entities.SessionStatusCompleted {
		t.Fatalf("expected completed after explicit close, got %s", closed.Status)
	}
}

func TestBallotVisibilityFollowsAnonymity(t *testing.T) {
	module, _, _ := newVotingFixture(nil)

	cases := []struct {
		anonymity entities.AnonymityLevel
		sealed    bool
		choice    bool
	}{
		{entities.AnonymityPublic, false, true},
		{entities.AnonymityInternal, false, false},
		{entities.AnonymitySecret, true, false},
	}
	for _, tc := range cases {
		session, items := openSession(t, module, 1, 50, tc.anonymity, []commands.OpenSessionItem{
			{Title: "motion " + string(tc.anonymity)},
		})
		if _, err := module.Sessions.CastBallot(context.Background(), commands.CastBallotCommand{
			SessionID:      session.SessionID,
			ItemID:         items[0].ItemID,
			VoterID:        "member-a",
			Choice:         entities.ChoiceFor,
			IdempotencyKey: "key-" + session.SessionID,
		}); err != nil {
			t.Fatalf("cast failed for %s: %v", tc.anonymity, err)
		}

		views, err := module.Results.ListBallots(context.Background(), session.SessionID)
		if tc.sealed {
			if !errors.Is(err, domainerrors.ErrBallotsSealed) {
				t.Fatalf("expected sealed ballots for %s, got %v", tc.anonymity, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("list ballots failed for %s: %v", tc.anonymity, err)
		}
		if len(views) != 1 || views[0].VoterID != "member-a" {
			t.Fatalf("expected voter visible for %s, got %+v", tc.anonymity, views)
		}
		if tc.choice && views[0].Choice != entities.ChoiceFor {
			t.Fatalf("expected choice visible for %s", tc.anonymity)
		}
		if !tc.choice && views[0].Choice != "" {
			t.Fatalf("expected choice redacted for %s, got %s", tc.anonymity, views[0].Choice)
		}
	}
}
