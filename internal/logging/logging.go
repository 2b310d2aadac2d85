// Package logging builds the process logger and keeps recent warnings in
// memory for the inspector's warning overlay.
package logging

import (
	"fmt"
	"sync"
	"time"

	"github.com/quarrygate/engine/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the logger described by cfg. Enabled entries at warn level and
// above are also kept in the returned Buffer.
func New(cfg config.LoggingConfig) (*zap.Logger, *Buffer, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	buf := NewBuffer(cfg.BufferSize, max(level, zapcore.WarnLevel))
	log, err := zapCfg.Build(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, buf)
	}))
	if err != nil {
		return nil, nil, err
	}
	return log, buf, nil
}

// Entry is one buffered log line.
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Logger  string            `json:"logger,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Buffer is a zapcore.Core that keeps the last N entries at or above a
// level. It is written from the game loop and read by inspector handlers, so
// it locks.
type Buffer struct {
	zapcore.LevelEnabler
	shared *ring
	fields []zapcore.Field
}

type ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	total   uint64
}

func NewBuffer(size int, level zapcore.LevelEnabler) *Buffer {
	if size <= 0 {
		size = 1
	}
	return &Buffer{LevelEnabler: level, shared: &ring{entries: make([]Entry, size)}}
}

func (b *Buffer) With(fields []zapcore.Field) zapcore.Core {
	return &Buffer{
		LevelEnabler: b.LevelEnabler,
		shared:       b.shared,
		fields:       append(append([]zapcore.Field(nil), b.fields...), fields...),
	}
}

func (b *Buffer) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if b.Enabled(e.Level) {
		return ce.AddCore(e, b)
	}
	return ce
}

func (b *Buffer) Write(e zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range b.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	entry := Entry{
		Time:    e.Time,
		Level:   e.Level.String(),
		Logger:  e.LoggerName,
		Message: e.Message,
	}
	if len(enc.Fields) > 0 {
		entry.Fields = make(map[string]string, len(enc.Fields))
		for k, v := range enc.Fields {
			entry.Fields[k] = stringify(v)
		}
	}
	b.shared.push(entry)
	return nil
}

func (b *Buffer) Sync() error { return nil }

// Entries returns the buffered entries, oldest first.
func (b *Buffer) Entries() []Entry { return b.shared.snapshot() }

// Total counts every entry ever written, including those rotated out.
func (b *Buffer) Total() uint64 {
	b.shared.mu.Lock()
	defer b.shared.mu.Unlock()
	return b.shared.total
}

// Clear drops the buffered entries.
func (b *Buffer) Clear() {
	r := b.shared
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
	r.next, r.full = 0, false
}

func (r *ring) push(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next++
	r.total++
	if r.next == len(r.entries) {
		r.next, r.full = 0, true
	}
}

func (r *ring) snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Entry(nil), r.entries[:r.next]...)
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case error:
		return x.Error()
	case interface{ String() string }:
		return x.String()
	}
	return fmt.Sprint(v)
}
