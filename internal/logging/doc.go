// Package logging writes the JSON debug log of an ensemble run.
//
// Records go through log/slog. Child loggers tag every record with the plan,
// phase, batch, task, agent or session they belong to, so one debug.log can
// be filtered to follow a single task through its retries and fallbacks:
//
//	logger, err := logging.NewLogger(".ensemble/logs", logging.LevelInfo)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	logger.WithTask("api").WithAgent("claude").Info("task completed", "duration_ms", 1520)
//
// A nil *Logger is valid and discards everything.
package logging
