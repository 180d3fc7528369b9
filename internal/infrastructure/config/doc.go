// Package config provides 12-factor configuration management for the
// pipeline runtime.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Pipeline: buffer capacity and per-processor error policy defaults
//   - Scheduler: thread bound, split/merge thresholds, hysteresis, cooldown
//   - Stall: claim-wait timeout and stalled-worker handling
//   - Server: operational HTTP surface (port, host)
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("serving on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PIPELINE_CAPACITY, PIPELINE_MAX_WORKERS, PIPELINE_ERROR_POLICY
//   - SCHED_MAX_THREADS, SCHED_EVAL_INTERVAL, SCHED_SPLIT_PENDING,
//     SCHED_MERGE_PENDING, SCHED_HYSTERESIS, SCHED_COOLDOWN
//   - STALL_CLAIM_TIMEOUT, STALL_CHECK_INTERVAL, STALL_GRACE
//   - PORT, HOST, LOG_LEVEL, LOG_DEV
package config
