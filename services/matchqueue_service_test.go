package services

import (
	"math/rand"
	"testing"
	"time"

	"game-arena-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queueFixture struct {
	queue    *MatchQueueService
	ratings  *RatingService
	battles  *BattleService
	notifier *memoryNotifier
}

func newQueueFixture(cfg MatchQueueConfig) *queueFixture {
	notifier := &memoryNotifier{}
	ratings := NewRatingService(nil, 0.95)
	battles := NewBattleService(nil, BattleConfig{}, notifier, rand.New(rand.NewSource(1)))
	queue := NewMatchQueueService(nil, cfg, ratings, battles, notifier, rand.New(rand.NewSource(1)))
	return &queueFixture{queue: queue, ratings: ratings, battles: battles, notifier: notifier}
}

func TestEnqueueAndDequeue(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{})

	id, err := f.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Len(t, f.queue.Pending(), 1)

	f.queue.Dequeue("alice")
	assert.Empty(t, f.queue.Pending())

	// Dequeue of an absent player is a no-op.
	f.queue.Dequeue("alice")
}

func TestEnqueueRejectsEmptyPlayer(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{})
	_, err := f.queue.Enqueue(models.PlayerRef{}, models.MatchCriteria{})
	assert.ErrorIs(t, err, ErrInvalidParticipants)
}

func TestEnqueueReplacePolicy(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{AllowReplace: true})

	first, err := f.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{})
	require.NoError(t, err)
	second, err := f.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{MaxLevel: 30})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Len(t, f.queue.Pending(), 1)

	strict := newQueueFixture(MatchQueueConfig{AllowReplace: false})
	_, err = strict.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{})
	require.NoError(t, err)
	_, err = strict.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestProcessQueuePairsCompatiblePlayers(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{})

	_, err := f.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(playerRef("bob", 12, "irc"), models.MatchCriteria{})
	require.NoError(t, err)

	f.queue.ProcessQueue()

	assert.Empty(t, f.queue.Pending())
	assert.Equal(t, 1, f.notifier.count("match_created"))
	assert.Equal(t, 1, f.notifier.count("battle_started"))
}

func TestRankedLoopUpdatesRatings(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{})

	_, err := f.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(playerRef("bob", 10, "irc"), models.MatchCriteria{})
	require.NoError(t, err)

	f.queue.ProcessQueue()
	require.Empty(t, f.queue.Pending())

	// One ranked battle is now active; play it out and check the ratings
	// write-back fires via the completion callback.
	var active *models.Battle
	f.battles.mu.Lock()
	for _, b := range f.battles.active {
		view := *b
		active = &view
	}
	f.battles.mu.Unlock()
	require.NotNil(t, active)
	require.True(t, active.Ranked)

	var res *TurnResult
	for i := 0; i < 40 && (res == nil || !res.Completed); i++ {
		var err error
		res, err = f.battles.SubmitTurn(active.ID, "alice", "attack")
		require.NoError(t, err)
	}
	require.True(t, res.Completed)

	assert.Equal(t, 965, f.ratings.Get("alice"))
	assert.Equal(t, 935, f.ratings.Get("bob"))
	assert.Equal(t, 1, f.notifier.count("rating_updated"))
}

func TestProcessQueueIsFIFO(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{})

	// Alice cannot take carol (recent partners), so if the tick honors
	// submission order alice claims bob first and carol is left waiting.
	// A tick that served carol before alice would pair carol with bob.
	f.queue.mu.Lock()
	f.queue.recordPairingLocked("alice", "carol", time.Now())
	f.queue.mu.Unlock()

	_, err := f.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(playerRef("bob", 10, "irc"), models.MatchCriteria{})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(playerRef("carol", 10, "discord"), models.MatchCriteria{})
	require.NoError(t, err)

	f.queue.ProcessQueue()

	pending := f.queue.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "carol", pending[0].PlayerID)
}

func TestProcessQueueIsolatesFailingRequests(t *testing.T) {
	notifier := &memoryNotifier{}
	battles := NewBattleService(nil, BattleConfig{}, notifier, rand.New(rand.NewSource(1)))
	// No rating store wired: every candidate search blows up, which stands
	// in for any per-request failure during a tick.
	queue := NewMatchQueueService(nil, MatchQueueConfig{}, nil, battles, notifier, rand.New(rand.NewSource(1)))

	_, err := queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{})
	require.NoError(t, err)
	_, err = queue.Enqueue(playerRef("bob", 10, "irc"), models.MatchCriteria{})
	require.NoError(t, err)

	// Must not panic out, must not deadlock, and the second request must
	// still be visited after the first one fails.
	queue.ProcessQueue()

	assert.Len(t, queue.Pending(), 2)

	// The queue stays usable after a failing tick.
	queue.Dequeue("alice")
	assert.Len(t, queue.Pending(), 1)
}

func TestRequestExpiresUnmatched(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{})

	_, err := f.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{MaxWaitSeconds: 1})
	require.NoError(t, err)

	// Backdate the request past its wait limit.
	f.queue.mu.Lock()
	f.queue.byPlayer["alice"].SubmittedAt = time.Now().Add(-2 * time.Second)
	f.queue.mu.Unlock()

	f.queue.ProcessQueue()

	assert.Empty(t, f.queue.Pending())
	assert.Equal(t, 1, f.notifier.count("match_expired"))
	assert.Zero(t, f.notifier.count("match_created"))
}

func TestRecentPartnersAreSkipped(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{})

	f.queue.mu.Lock()
	f.queue.recordPairingLocked("alice", "bob", time.Now())
	f.queue.mu.Unlock()

	_, err := f.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(playerRef("bob", 10, "irc"), models.MatchCriteria{})
	require.NoError(t, err)

	f.queue.ProcessQueue()

	// Nobody else to pair with, so both wait out the anti-repeat window.
	assert.Len(t, f.queue.Pending(), 2)
	assert.Zero(t, f.notifier.count("match_created"))
}

func TestRecentPartnerWindowSlides(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{})

	f.queue.mu.Lock()
	f.queue.recordPairingLocked("alice", "bob", time.Now())
	for _, other := range []string{"c1", "c2", "c3", "c4", "c5"} {
		f.queue.recordPairingLocked("alice", other, time.Now())
		f.queue.recordPairingLocked("bob", other, time.Now())
	}
	played := f.queue.recentlyPlayedLocked("alice", "bob")
	f.queue.mu.Unlock()

	// Five fresher opponents pushed bob out of the anti-repeat window.
	assert.False(t, played)
}

func TestLevelWindowFilters(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{})

	_, err := f.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{MinLevel: 8, MaxLevel: 12})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(playerRef("bob", 40, "irc"), models.MatchCriteria{MinLevel: 38, MaxLevel: 42})
	require.NoError(t, err)

	f.queue.ProcessQueue()

	assert.Len(t, f.queue.Pending(), 2)
}

func TestRatingRangeFilters(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{RankingEnabled: true})
	f.ratings.ratings["alice"] = &models.PlayerRating{PlayerID: "alice", Rating: 1300}
	f.ratings.ratings["bob"] = &models.PlayerRating{PlayerID: "bob", Rating: 1000}

	_, err := f.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{RankingRange: 100})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(playerRef("bob", 10, "irc"), models.MatchCriteria{RankingRange: 100})
	require.NoError(t, err)

	f.queue.ProcessQueue()
	assert.Len(t, f.queue.Pending(), 2)

	// Widening the range makes the same pair viable.
	wide := newQueueFixture(MatchQueueConfig{RankingEnabled: true})
	wide.ratings.ratings["alice"] = &models.PlayerRating{PlayerID: "alice", Rating: 1300}
	wide.ratings.ratings["bob"] = &models.PlayerRating{PlayerID: "bob", Rating: 1000}
	_, err = wide.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{RankingRange: 400})
	require.NoError(t, err)
	_, err = wide.queue.Enqueue(playerRef("bob", 10, "irc"), models.MatchCriteria{RankingRange: 400})
	require.NoError(t, err)

	wide.queue.ProcessQueue()
	assert.Empty(t, wide.queue.Pending())
}

func TestCrossNetworkPreferenceWins(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{})

	_, err := f.queue.Enqueue(playerRef("alice", 10, "discord"), models.MatchCriteria{PreferCrossNetwork: true})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(playerRef("bob", 10, "discord"), models.MatchCriteria{})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(playerRef("carol", 10, "irc"), models.MatchCriteria{})
	require.NoError(t, err)

	f.queue.ProcessQueue()

	// The +50 cross-network bonus dominates the jitter term, so alice pairs
	// with carol and bob keeps waiting.
	pending := f.queue.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "bob", pending[0].PlayerID)
}

func TestBracketWidening(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{BracketWidth: 10, MaxLevel: 100})

	// Levels 9 and 11 sit in different brackets but inside each other's
	// level windows, so the empty-bracket widening pass pairs them.
	_, err := f.queue.Enqueue(playerRef("alice", 9, "discord"), models.MatchCriteria{MinLevel: 5, MaxLevel: 15})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(playerRef("bob", 11, "irc"), models.MatchCriteria{MinLevel: 5, MaxLevel: 15})
	require.NoError(t, err)

	f.queue.ProcessQueue()
	assert.Empty(t, f.queue.Pending())
}

func TestOverflowLevelLandsInTopBracket(t *testing.T) {
	f := newQueueFixture(MatchQueueConfig{BracketWidth: 10, MaxLevel: 100})

	f.queue.mu.Lock()
	b := f.queue.bracketForLocked(250)
	f.queue.mu.Unlock()

	require.NotNil(t, b)
	assert.Equal(t, 91, b.MinLevel)
}
