// Package ring implements the sequenced broadcast buffer at the heart of the
// pipeline: a fixed-capacity ring of slots addressed by a monotonically
// increasing 64-bit sequence number, shared by concurrent producers and by
// consumer groups whose members jointly claim slots with exactly-once
// semantics.
//
// Synchronization model:
//   - Producers reserve a sequence with a compare-and-swap on the write
//     cursor, then store the payload and finally the slot's sequence field.
//     The sequence-field store is the single publication point consumers
//     wait on.
//   - A consumer group shares one claim cursor; whichever member wins the
//     compare-and-swap on it owns that sequence exclusively. Membership size
//     is decoupled from correctness, which is what makes runtime split and
//     merge of workers cheap.
//   - The group cursor (highest fully completed sequence) advances only over
//     contiguously completed sequences, tracked in a per-group marker ring.
//   - The buffer watermark, the minimum group cursor across attached groups,
//     gates both overwrite (backpressure) and reclamation of externally
//     pooled payload memory.
//
// No operation on the publish or claim path takes a lock. Full-buffer and
// empty-claim conditions are handled by a spin-then-park waiter, never by
// blocking on a mutex.
package ring
