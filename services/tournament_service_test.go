package services

import (
	"math/rand"
	"testing"
	"time"

	"game-arena-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tournamentFixture struct {
	tournaments *TournamentService
	battles     *BattleService
	ratings     *RatingService
	notifier    *memoryNotifier
}

func newTournamentFixture() *tournamentFixture {
	notifier := &memoryNotifier{}
	ratings := NewRatingService(nil, 1.0)
	battles := NewBattleService(nil, BattleConfig{}, notifier, rand.New(rand.NewSource(1)))
	tournaments := NewTournamentService(nil, battles, ratings, notifier, rand.New(rand.NewSource(1)), 4)
	return &tournamentFixture{tournaments: tournaments, battles: battles, ratings: ratings, notifier: notifier}
}

// playOut drives a battle to completion by having winnerID attack every turn.
func (f *tournamentFixture) playOut(t *testing.T, battleID, winnerID string) {
	t.Helper()
	for i := 0; i < 40; i++ {
		res, err := f.battles.SubmitTurn(battleID, winnerID, "attack")
		require.NoError(t, err)
		if res.Completed {
			require.Equal(t, winnerID, res.WinnerID)
			return
		}
	}
	t.Fatal("battle did not complete")
}

// resolveAll plays every round until the tournament completes, always letting
// slot A win.
func (f *tournamentFixture) resolveAll(t *testing.T, tournamentID string) *models.Tournament {
	t.Helper()
	for i := 0; i < 8; i++ {
		tour, err := f.tournaments.Get(tournamentID)
		require.NoError(t, err)
		if tour.Status == models.TournamentStatusCompleted {
			return tour
		}
		require.Equal(t, models.TournamentStatusActive, tour.Status)
		for _, m := range tour.CurrentRound() {
			if m.Status == models.MatchStatusActive {
				f.playOut(t, m.BattleID, m.SideA.ID)
			}
		}
	}
	t.Fatal("tournament did not complete")
	return nil
}

func TestScheduleDefaults(t *testing.T) {
	f := newTournamentFixture()

	tour := f.tournaments.Schedule("", TournamentOptions{})
	assert.Equal(t, "single_elimination", tour.Type)
	assert.Equal(t, models.TournamentStatusScheduled, tour.Status)
	assert.Equal(t, 16, tour.MaxPlayers)
	assert.Equal(t, 4, tour.MinPlayers)
	assert.Equal(t, 1, f.notifier.count("tournament_scheduled"))
}

func TestRegisterErrors(t *testing.T) {
	f := newTournamentFixture()

	_, err := f.tournaments.Register("missing", playerRef("alice", 10, "discord"))
	assert.ErrorIs(t, err, ErrNotFound)

	tour := f.tournaments.Schedule("", TournamentOptions{MaxPlayers: 8, MinPlayers: 4})
	_, err = f.tournaments.Register(tour.ID, playerRef("alice", 10, "discord"))
	require.NoError(t, err)

	_, err = f.tournaments.Register(tour.ID, playerRef("alice", 10, "discord"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRegisterCapacity(t *testing.T) {
	f := newTournamentFixture()

	// Min above max keeps the roster from auto-starting when it fills, so
	// the capacity path is reachable.
	tour := f.tournaments.Schedule("", TournamentOptions{MaxPlayers: 2, MinPlayers: 4})
	_, err := f.tournaments.Register(tour.ID, playerRef("alice", 10, "discord"))
	require.NoError(t, err)
	_, err = f.tournaments.Register(tour.ID, playerRef("bob", 10, "irc"))
	require.NoError(t, err)

	_, err = f.tournaments.Register(tour.ID, playerRef("carol", 10, "discord"))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestStartErrors(t *testing.T) {
	f := newTournamentFixture()

	_, err := f.tournaments.Start("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	tour := f.tournaments.Schedule("", TournamentOptions{MaxPlayers: 8, MinPlayers: 4})
	_, err = f.tournaments.Register(tour.ID, playerRef("alice", 10, "discord"))
	require.NoError(t, err)
	_, err = f.tournaments.Register(tour.ID, playerRef("bob", 10, "irc"))
	require.NoError(t, err)

	_, err = f.tournaments.Start(tour.ID)
	assert.ErrorIs(t, err, ErrInsufficientParticipants)

	// The failed start must leave registration open.
	got, err := f.tournaments.Get(tour.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusScheduled, got.Status)
}

func TestFivePlayerBracketTopology(t *testing.T) {
	f := newTournamentFixture()

	tour := f.tournaments.Schedule("", TournamentOptions{MaxPlayers: 8, MinPlayers: 4})
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		_, err := f.tournaments.Register(tour.ID, playerRef(id, 10, "discord"))
		require.NoError(t, err)
	}

	started, err := f.tournaments.Start(tour.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusActive, started.Status)

	// Five players: three first-round matches, exactly one of them a bye.
	round := started.CurrentRound()
	require.Len(t, round, 3)
	byes := 0
	for _, m := range round {
		if m.Bye() {
			byes++
			assert.Equal(t, m.SideA.ID, m.WinnerID)
		} else {
			assert.Equal(t, models.MatchStatusActive, m.Status)
			assert.NotEmpty(t, m.BattleID)
		}
	}
	assert.Equal(t, 1, byes)

	done := f.resolveAll(t, tour.ID)
	assert.Equal(t, models.TournamentStatusCompleted, done.Status)
	assert.NotEmpty(t, done.ChampionID)

	// 3 matches, then 2 (one bye), then the final.
	require.Len(t, done.Rounds, 3)
	assert.Len(t, done.Rounds[1], 2)
	assert.Len(t, done.Rounds[2], 1)

	// A second start on the finished bracket is rejected.
	_, err = f.tournaments.Start(tour.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAutoStartOnFullRoster(t *testing.T) {
	f := newTournamentFixture()

	tour := f.tournaments.Schedule("", TournamentOptions{MaxPlayers: 4, MinPlayers: 4})
	for _, id := range []string{"p1", "p2", "p3"} {
		_, err := f.tournaments.Register(tour.ID, playerRef(id, 10, "discord"))
		require.NoError(t, err)
	}
	got, err := f.tournaments.Get(tour.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusScheduled, got.Status)

	last, err := f.tournaments.Register(tour.ID, playerRef("p4", 10, "discord"))
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusActive, last.Status)
	assert.Len(t, last.CurrentRound(), 2)

	// Late registration against the running bracket fails.
	_, err = f.tournaments.Register(tour.ID, playerRef("late", 10, "irc"))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestViewsDetachedFromLiveBracket(t *testing.T) {
	f := newTournamentFixture()

	tour := f.tournaments.Schedule("", TournamentOptions{MaxPlayers: 8, MinPlayers: 4})
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		_, err := f.tournaments.Register(tour.ID, playerRef(id, 10, "discord"))
		require.NoError(t, err)
	}
	_, err := f.tournaments.Start(tour.ID)
	require.NoError(t, err)

	view, err := f.tournaments.Get(tour.ID)
	require.NoError(t, err)
	held := view.CurrentRound()[0]
	require.Equal(t, models.MatchStatusActive, held.Status)

	f.playOut(t, held.BattleID, held.SideA.ID)

	// The copy handed out earlier must not change under the caller.
	assert.Equal(t, models.MatchStatusActive, held.Status)
	assert.Empty(t, held.WinnerID)

	// A fresh view sees the result.
	fresh, err := f.tournaments.Get(tour.ID)
	require.NoError(t, err)
	var refetched *models.BracketMatch
	for _, m := range fresh.Rounds[0] {
		if m.ID == held.ID {
			refetched = m
		}
	}
	require.NotNil(t, refetched)
	assert.Equal(t, models.MatchStatusCompleted, refetched.Status)
	assert.Equal(t, held.SideA.ID, refetched.WinnerID)
}

func TestRegistrationAnnouncedBeforeStart(t *testing.T) {
	f := newTournamentFixture()

	tour := f.tournaments.Schedule("", TournamentOptions{MaxPlayers: 4, MinPlayers: 4})
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		_, err := f.tournaments.Register(tour.ID, playerRef(id, 10, "discord"))
		require.NoError(t, err)
	}

	f.notifier.mu.Lock()
	lastRegistration, started := -1, -1
	for i, e := range f.notifier.events {
		switch e {
		case "tournament_registration":
			lastRegistration = i
		case "tournament_started":
			started = i
		}
	}
	f.notifier.mu.Unlock()

	require.NotEqual(t, -1, started)
	assert.Less(t, lastRegistration, started,
		"the filling registration must be announced before the start")
}

func TestCompletionAnnouncedSynchronously(t *testing.T) {
	f := newTournamentFixture()

	tour := f.tournaments.Schedule("", TournamentOptions{MaxPlayers: 4, MinPlayers: 4})
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		_, err := f.tournaments.Register(tour.ID, playerRef(id, 10, "discord"))
		require.NoError(t, err)
	}

	f.resolveAll(t, tour.ID)

	// The announcement lands before the final SubmitTurn call returns, so
	// it is visible immediately with no sleep or polling.
	assert.Equal(t, 1, f.notifier.count("tournament_completed"))
}

func TestStartDueSweep(t *testing.T) {
	f := newTournamentFixture()

	tour := f.tournaments.Schedule("", TournamentOptions{
		MaxPlayers: 16,
		MinPlayers: 4,
		StartDelay: -time.Second,
	})
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		_, err := f.tournaments.Register(tour.ID, playerRef(id, 10, "discord"))
		require.NoError(t, err)
	}

	f.tournaments.StartDue()

	got, err := f.tournaments.Get(tour.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusActive, got.Status)
}

func TestPrizeDistribution(t *testing.T) {
	f := newTournamentFixture()

	tour := f.tournaments.Schedule("", TournamentOptions{
		MaxPlayers: 8,
		MinPlayers: 4,
		EntryFee:   100,
		PrizeTiers: []models.PrizeTier{
			{Fraction: 0.5, Places: 1},
			{Fraction: 0.3, Places: 1},
			{Fraction: 0.2, Places: 1},
		},
	})
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"} {
		_, err := f.tournaments.Register(tour.ID, playerRef(id, 10, "discord"))
		require.NoError(t, err)
	}

	done := f.resolveAll(t, tour.ID)
	require.Len(t, done.Rounds, 3)

	// Pool 800: 400 / 240 / 160 across the first three places.
	require.Len(t, done.Payouts, 3)
	assert.Equal(t, int64(400), done.Payouts[0].Amount)
	assert.Equal(t, int64(240), done.Payouts[1].Amount)
	assert.Equal(t, int64(160), done.Payouts[2].Amount)
	assert.Equal(t, done.ChampionID, done.Payouts[0].PlayerID)
	assert.Equal(t, 1, done.Payouts[0].Place)
	assert.Equal(t, 3, done.Payouts[2].Place)

	// Second place is the beaten finalist, third a semifinal loser.
	final := done.Rounds[2][0]
	assert.Equal(t, final.Loser().ID, done.Payouts[1].PlayerID)
	semiLosers := map[string]bool{
		done.Rounds[1][0].Loser().ID: true,
		done.Rounds[1][1].Loser().ID: true,
	}
	assert.True(t, semiLosers[done.Payouts[2].PlayerID])
}

func TestStandings(t *testing.T) {
	f := newTournamentFixture()

	tour := f.tournaments.Schedule("", TournamentOptions{MaxPlayers: 8, MinPlayers: 4})
	players := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}
	for _, id := range players {
		_, err := f.tournaments.Register(tour.ID, playerRef(id, 10, "discord"))
		require.NoError(t, err)
	}

	_, err := f.tournaments.Standings(tour.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	done := f.resolveAll(t, tour.ID)

	standings, err := f.tournaments.Standings(tour.ID)
	require.NoError(t, err)
	require.Len(t, standings, len(players))
	assert.Equal(t, done.ChampionID, standings[0])

	seen := map[string]bool{}
	for _, id := range standings {
		assert.False(t, seen[id], "player %s ranked twice", id)
		seen[id] = true
	}
}
