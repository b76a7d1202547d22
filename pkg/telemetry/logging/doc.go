// Package logging builds the process logger.
//
// Loggers are plain *slog.Logger values so that every component can accept
// one, or fall back to slog.Default(). New wires three things on top of the
// standard JSON or text handler:
//
//   - level, format and source location from config.LoggingConfig
//   - context fields (update_id, url, path, topic) added to every record
//     logged through a *Context method
//   - secret redaction of authorization headers, tokens and passwords,
//     including those nested in fetch configs
//
// Usage:
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging, os.Stderr)
//	if err != nil {
//	    return err
//	}
//
//	ctx = logging.WithUpdateID(ctx, update.ID)
//	logger.InfoContext(ctx, "applying update", "config", entry.Config)
//	// {"msg":"applying update","update_id":"...","config":{"headers":{"Authorization":"***"}}}
package logging
