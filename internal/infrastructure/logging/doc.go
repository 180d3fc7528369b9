// Package logging provides structured logging using uber/zap.
//
// Two modes, selected by configuration:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// The pipeline's hot path never logs; loggers are handed to the scheduler,
// the stall monitor, and the operational HTTP surface, all of which operate
// at human timescales.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("pipeline started", zap.Int("processors", 4))
//	logger.Error("stage halted", zap.Error(err))
package logging
