package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/rowindex/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const maxPatternLen = 200

var (
	kvPasswordRe  = regexp.MustCompile(`(?i)\b((?:password|pwd)\s*=\s*)[^;&\s]+`)
	urlUserinfoRe = regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://[^:/@\s]+:)[^@/\s]+(@)`)
)

// Secret creates a Zap field for config.Secret carrying only its length.
func Secret(key string, val config.Secret) zap.Field {
	return RedactedString(key, val.Value())
}

// RedactedString creates a Zap field with redacted value and length.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// MaskDSN hides the password in a database connection string while keeping
// host, database and parameters readable.
//
//	sqlserver://sa:pw@db:1433?database=x  -> sqlserver://sa:***@db:1433?database=x
//	host=db user=u password=pw            -> host=db user=u password=***
func MaskDSN(dsn string) string {
	dsn = urlUserinfoRe.ReplaceAllString(dsn, "${1}***${2}")
	return kvPasswordRe.ReplaceAllString(dsn, "${1}***")
}

// DSN creates a Zap field holding a masked connection string.
func DSN(key, dsn string) zap.Field {
	return zap.String(key, MaskDSN(dsn))
}

// RedactingEncoder wraps a zapcore.Encoder to redact sensitive fields.
type RedactingEncoder struct {
	zapcore.Encoder
	redactFields map[string]bool
	redactRegex  []*regexp.Regexp
}

// NewRedactingEncoder wraps an encoder with redaction rules.
// Returns error if any redaction pattern fails to compile.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}

	fields := make(map[string]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		fields[strings.ToLower(f)] = true
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return &RedactingEncoder{
		Encoder:      base,
		redactFields: fields,
		redactRegex:  patterns,
	}, nil
}

func (e *RedactingEncoder) shouldRedactKey(key string) bool {
	return e.redactFields[strings.ToLower(key)]
}

func (e *RedactingEncoder) matchesPattern(val string) bool {
	for _, re := range e.redactRegex {
		if re.MatchString(val) {
			return true
		}
	}
	return false
}

// AddString redacts sensitive field names and value patterns.
func (e *RedactingEncoder) AddString(key, val string) {
	switch {
	case e.shouldRedactKey(key):
		e.Encoder.AddString(key, "[REDACTED]")
	case e.matchesPattern(val):
		e.Encoder.AddString(key, "[REDACTED:pattern]")
	default:
		e.Encoder.AddString(key, val)
	}
}

// AddByteString redacts sensitive field names and value patterns.
func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.shouldRedactKey(key) || e.matchesPattern(string(val)) {
		e.Encoder.AddByteString(key, []byte("[REDACTED]"))
		return
	}
	e.Encoder.AddByteString(key, val)
}

// AddBinary redacts sensitive field names.
func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.shouldRedactKey(key) {
		e.Encoder.AddBinary(key, []byte("[REDACTED]"))
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected redacts the whole value when the key is sensitive.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.shouldRedactKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// AddArray redacts sensitive field names.
func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.shouldRedactKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

// AddObject redacts sensitive field names.
func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.shouldRedactKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// Clone creates a copy of the encoder.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder:      e.Encoder.Clone(),
		redactFields: e.redactFields,
		redactRegex:  e.redactRegex,
	}
}

// EncodeEntry redacts per-call fields and the message before encoding.
// Fields attached with With already went through the Add* methods above.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if e.matchesPattern(ent.Message) {
		ent.Message = MaskDSN(ent.Message)
	}

	var redacted []zapcore.Field
	for i, f := range fields {
		replacement, ok := e.redactField(f)
		if !ok {
			continue
		}
		if redacted == nil {
			redacted = append([]zapcore.Field(nil), fields...)
		}
		redacted[i] = replacement
	}
	if redacted != nil {
		fields = redacted
	}

	return e.Encoder.EncodeEntry(ent, fields)
}

// redactField returns the replacement for f when it must be redacted.
func (e *RedactingEncoder) redactField(f zapcore.Field) (zapcore.Field, bool) {
	if f.Type == zapcore.SkipType || f.Type == zapcore.NamespaceType {
		return f, false
	}
	if e.shouldRedactKey(f.Key) {
		return zap.String(f.Key, "[REDACTED]"), true
	}
	if f.Type == zapcore.StringType && e.matchesPattern(f.String) {
		return zap.String(f.Key, "[REDACTED:pattern]"), true
	}
	if f.Type == zapcore.ErrorType {
		if err, ok := f.Interface.(error); ok && e.matchesPattern(err.Error()) {
			return zap.String(f.Key, MaskDSN(err.Error())), true
		}
	}
	return f, false
}
