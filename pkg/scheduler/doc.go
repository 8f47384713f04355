/*
Package scheduler implements the TaskScheduler collaborator described in
spec.md §6: `now()`, `schedule(work)`, `schedule_after(delay, work)`.

Every bolt- or memory-backed Store owns exactly one Scheduler (spec.md §5:
"each store owns one task scheduler handle and one conceptual worker"), and
every backend call of such a store runs on its worker. SQLite-backed stores
have no Scheduler: their operation queue runs its own worker goroutine and
flush ticker.

	┌─────────────────────────────────────────────┐
	│                 Scheduler                    │
	│                                               │
	│  Schedule(work)  ──▶ pending channel ──▶ run()│
	│  ScheduleAfter(d, work) ──▶ timer goroutine ──┘
	│                              │
	│                              ▼ (after d)
	│                         Schedule(work)
	└─────────────────────────────────────────────┘

Close stops accepting new work, drains anything already buffered, and waits
for outstanding ScheduleAfter goroutines to exit before returning. Work whose
ScheduleAfter delay has not elapsed when Close is called is dropped, not run,
and so is work passed to Schedule after Close.
*/
package scheduler
