package logging

import (
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InstrumentationName is the OpenTelemetry scope of bridged log records.
const InstrumentationName = "rowindex"

// newOTELCore builds the bridge core: redacted, level-filtered and sampled
// the same way as the local output.
func newOTELCore(cfg *Config, provider log.LoggerProvider) (zapcore.Core, error) {
	rules, err := NewRedactingEncoder(nil, cfg.Redaction)
	if err != nil {
		return nil, fmt.Errorf("failed to create redaction rules: %w", err)
	}

	var core zapcore.Core = &redactingCore{
		Core:  otelzap.NewCore(InstrumentationName, otelzap.WithLoggerProvider(provider)),
		rules: rules,
	}
	// zapcore.NewIncreaseLevelCore rejects levels below Debug, so Trace
	// needs the range core.
	core = &levelRangeCore{Core: core, lo: cfg.Level, hi: zapcore.FatalLevel}

	if len(cfg.Fields) > 0 {
		fields := make([]zapcore.Field, 0, len(cfg.Fields))
		for k, v := range cfg.Fields {
			fields = append(fields, zap.String(k, v))
		}
		core = core.With(fields)
	}
	return newSampledCore(core, cfg.Sampling), nil
}

// WithOTEL returns a logger that also emits every entry as an OpenTelemetry
// log record through provider. A context.Context passed as a field (see
// TraceContext) correlates the record with the active span.
//
// Call it on the root logger: fields already attached with With reach the
// local output only. A nil provider returns l unchanged.
func (l *Logger) WithOTEL(provider log.LoggerProvider) (*Logger, error) {
	if provider == nil {
		return l, nil
	}
	cfg := l.config
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	otelCore, err := newOTELCore(cfg, provider)
	if err != nil {
		return nil, err
	}

	return &Logger{
		zap: l.zap.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, otelCore)
		})),
		config: cfg,
	}, nil
}

// redactingCore applies the encoder's redaction rules to fields before they
// reach a core that does not encode through RedactingEncoder.
type redactingCore struct {
	zapcore.Core
	rules *RedactingEncoder
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.redact(fields)), rules: c.rules}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if c.rules.matchesPattern(ent.Message) {
		ent.Message = MaskDSN(ent.Message)
	}
	return c.Core.Write(ent, c.redact(fields))
}

func (c *redactingCore) redact(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		replacement, ok := c.rules.redactField(f)
		if !ok {
			continue
		}
		if out == nil {
			out = append([]zapcore.Field(nil), fields...)
		}
		out[i] = replacement
	}
	if out == nil {
		return fields
	}
	return out
}
