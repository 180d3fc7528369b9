// Package sched maps pipeline processors onto a bounded pool of thread
// slots and adapts the mapping as load changes.
//
// Each thread slot is a long-lived worker goroutine that round-robins one
// step per assigned runner per iteration. A runner is one physical worker of
// a processor; adding a runner to an overloaded processor (a split) only
// registers one more member with the processor's upstream consumer group, so
// transitions never pause producers and never lose or duplicate events.
// Merging is the reverse: surplus workers retire cooperatively, and a
// processor down to a single low-load worker is co-located onto a slot
// shared with other quiet processors.
//
// Decisions are driven by per-processor load snapshots (pending depth plus
// an exponentially weighted moving average of claim-wait time) and are
// deliberately sluggish: a split or merge fires only after the signal holds
// for a full hysteresis window and a cool-down has elapsed since the last
// change. The hysteresis is load-bearing for stability, not a tuning nicety.
package sched
