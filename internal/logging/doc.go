// Package logging provides structured logging for rowindex commands.
//
// # Overview
//
// The package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Output on stderr, leaving stdout to command results
//   - Context field injection (trace_id, run.id, collection)
//   - Secret redaction tuned for database connection strings
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
//	cfg, err := logging.FromSettings(appCfg.Logging)
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, uuid.NewString())
//	logger.Info(ctx, "rebuild started", zap.Int("batch_size", 5000))
//
// Components below the command layer take the plain *zap.Logger returned by
// Underlying.
//
// # Secret Redaction
//
// Secrets are redacted at several layers:
//  1. config.Secret never formats its value
//  2. Sensitive field names (password, dsn, api_key, ...) are blanked
//  3. Values that look like credentials in a DSN or header are replaced
//
// MaskDSN and the DSN field helper keep a connection string readable while
// hiding its password:
//
//	logger.Info(ctx, "connecting", logging.DSN("target", dsn))
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	pipeline.Logger = tl.Underlying()
//	...
//	tl.AssertLogged(t, zapcore.WarnLevel, "failed to delete collection")
//	tl.AssertNoSecrets(t)
package logging
