// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// ArenaScheduler drives the periodic edges of the arena: the matchmaking
// tick, the tournament start sweep and the stale-battle forfeit sweep.
// Round advancement is not scheduled here; it reacts to battle completion.
type ArenaScheduler struct {
	queue       *MatchQueueService
	tournaments *TournamentService
	battles     *BattleService
	sched       gocron.Scheduler
}

func NewArenaScheduler(queue *MatchQueueService, tournaments *TournamentService, battles *BattleService) *ArenaScheduler {
	return &ArenaScheduler{
		queue:       queue,
		tournaments: tournaments,
		battles:     battles,
	}
}

// Start registers the jobs and begins ticking. queueTick controls how often
// the match queue is processed; everything else runs on a fixed minute
// cadence.
func (a *ArenaScheduler) Start(queueTick time.Duration) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("⚠️ [Scheduler] init failed: %v", err)
		return
	}
	a.sched = sched
	sched.Start()

	if queueTick <= 0 {
		queueTick = 5 * time.Second
	}

	// Matchmaking tick: score and pair everyone waiting, expire the stale.
	_, _ = sched.NewJob(
		gocron.DurationJob(queueTick),
		gocron.NewTask(func() {
			a.queue.ProcessQueue()
		}),
	)

	// Every minute: start tournaments whose start time has arrived.
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			a.tournaments.StartDue()
		}),
	)

	// Every minute: forfeit battles abandoned past the idle limit.
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			if n := a.battles.ForfeitStale(); n > 0 {
				log.Printf("⏱️ [Scheduler] forfeited %d stale battle(s)", n)
			}
		}),
	)

	log.Printf("✅ Arena scheduler started (queue tick %s)", queueTick)
}

// Shutdown stops the job runner.
func (a *ArenaScheduler) Shutdown() {
	if a.sched != nil {
		_ = a.sched.Shutdown()
	}
}
