package lobby

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/Seednode/pokerbox/poker"
)

// hostWithGuests creates a session hosted by the profile's user and adds
// guests directly to the stored session, as a placeholder host would see
// them.
func hostWithGuests(t *testing.T, svc *Service, guests ...string) {
	t.Helper()
	ctx := context.Background()

	cards, _ := svc.CardSet("", nil)
	view, err := svc.Create(ctx, "Planning", "Alice", cards)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	s := view.Session
	for _, g := range guests {
		if s, err = poker.Apply(s, poker.AddUser{User: poker.User{ID: g, Name: g}}); err != nil {
			t.Fatalf("add %s: %v", g, err)
		}
	}
	if err := svc.repo.SaveSession(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestTickIgnoresIdleSessions(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	sim := NewSimulator(svc, time.Second, rand.New(rand.NewPCG(1, 2)))

	if changed, err := sim.Tick(ctx); changed || err != nil {
		t.Fatalf("tick without session = %v, %v", changed, err)
	}

	hostWithGuests(t, svc, "bob", "carol")
	for range 50 {
		if changed, err := sim.Tick(ctx); changed || err != nil {
			t.Fatalf("tick while idle = %v, %v", changed, err)
		}
	}
}

func TestTickVotesForOthersOnly(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	sim := NewSimulator(svc, time.Second, rand.New(rand.NewPCG(1, 2)))

	hostWithGuests(t, svc, "bob", "carol", "dave")
	if _, err := svc.StartVoting(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	for range 500 {
		if _, err := sim.Tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}

	view, err := svc.Reveal(ctx, true)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}

	for _, u := range view.Session.Users {
		if u.ID == view.User.ID {
			if u.HasVoted {
				t.Error("simulator voted for the viewer")
			}
			continue
		}
		if !u.HasVoted {
			t.Errorf("%s never voted", u.ID)
		}
		if !view.Session.HasCard(u.Vote) {
			t.Errorf("%s voted %q outside the card set", u.ID, u.Vote)
		}
	}
}

func TestTickStopsAfterReveal(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	sim := NewSimulator(svc, time.Second, rand.New(rand.NewPCG(3, 4)))

	hostWithGuests(t, svc, "bob")
	if _, err := svc.StartVoting(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Reveal(ctx, true); err != nil {
		t.Fatalf("reveal: %v", err)
	}

	for range 50 {
		if changed, _ := sim.Tick(ctx); changed {
			t.Fatal("simulator voted after reveal")
		}
	}
}

func TestRunFollowsClock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, _, clock := newTestService(t)
	hostWithGuests(t, svc, "bob")
	if _, err := svc.StartVoting(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	changes, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	sim := NewSimulator(svc, 2*time.Second, rand.New(rand.NewPCG(5, 6)))
	done := make(chan struct{})
	go func() {
		sim.Run(ctx)
		close(done)
	}()

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("waiting for ticker: %v", err)
	}

	voted := false
	for i := 0; i < 100 && !voted; i++ {
		clock.Advance(2 * time.Second)
		select {
		case <-changes:
			voted = true
		case <-time.After(20 * time.Millisecond):
		}
	}
	if !voted {
		t.Fatal("simulated participant never voted")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
