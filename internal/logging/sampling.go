package logging

import (
	"go.uber.org/zap/zapcore"
)

// sampledLevels are the levels eligible for sampling, lowest first.
var sampledLevels = []zapcore.Level{
	TraceLevel,
	zapcore.DebugLevel,
	zapcore.InfoLevel,
	zapcore.WarnLevel,
}

// newSampledCore wraps core with per-level sampling.
// Error and above are never sampled; a level without a sampling entry
// passes through untouched.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	cores := []zapcore.Core{
		&levelRangeCore{Core: core, lo: zapcore.ErrorLevel, hi: zapcore.FatalLevel},
	}
	for _, lvl := range sampledLevels {
		band := &levelRangeCore{Core: core, lo: lvl, hi: lvl}
		rate, ok := cfg.Levels[lvl]
		if !ok {
			cores = append(cores, band)
			continue
		}
		cores = append(cores, zapcore.NewSamplerWithOptions(
			band,
			cfg.Tick.Duration(),
			rate.Initial,
			rate.Thereafter,
		))
	}

	return zapcore.NewTee(cores...)
}

// levelRangeCore only accepts entries with lo <= level <= hi.
type levelRangeCore struct {
	zapcore.Core
	lo, hi zapcore.Level
}

func (c *levelRangeCore) Enabled(lvl zapcore.Level) bool {
	if lvl < c.lo || lvl > c.hi {
		return false
	}
	return c.Core.Enabled(lvl)
}

func (c *levelRangeCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelRangeCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelRangeCore{
		Core: c.Core.With(fields),
		lo:   c.lo,
		hi:   c.hi,
	}
}
