/*
Package pipeline wires sequenced buffers, consumer groups, and processors
into a directed acyclic event-processing graph and owns its lifecycle.

# Topology

Producers publish events into a buffer; each consumer group attached to that
buffer sees the full stream exactly once; a processor binds one upstream
group to user logic and zero or more downstream buffers. Fan-out is a buffer
with several groups; fan-in is several processors publishing into one buffer.
Cycle creation is rejected at registration time.

	src --> [stage-in] --> enrich --> [stage-out] --> sink
	                  \--> audit

# Lifecycle

Construction (CreateBuffer, AttachGroup, RegisterProcessor) happens before
Start. Start hands every processor to the thread-assignment scheduler and
launches the stall monitor. Shutdown drains buffers in topological order so
upstream stages flush their owed downstream publishes, then stops the
scheduler and joins every thread slot.

# Failure handling

Handler failures follow the processor's configured policy: skip (default),
retry-then-skip, or halt-group. Workers holding a claim past the configured
timeout are canceled cooperatively and replaced; a worker that ignores
cancellation past the grace period is escalated loudly, because a stalled
member blocks its group's watermark and therefore backpressures producers
forever.
*/
package pipeline
