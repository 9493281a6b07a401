package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// LogEventAdapter adapts zerolog events to the LogEvent interface and applies
// the sensitive data filter to string and structured values.
type LogEventAdapter struct {
	event  *zerolog.Event
	filter *SensitiveDataFilter
}

func (a *LogEventAdapter) wrap(e *zerolog.Event) LogEvent {
	return &LogEventAdapter{event: e, filter: a.filter}
}

// Msg sends the event with the given message.
func (a *LogEventAdapter) Msg(msg string) {
	a.event.Msg(msg)
}

// Msgf sends the event with a formatted message.
func (a *LogEventAdapter) Msgf(format string, args ...any) {
	a.event.Msgf(format, args...)
}

func (a *LogEventAdapter) Err(err error) LogEvent {
	return a.wrap(a.event.Err(err))
}

// Str adds a string field, masking it when the key is sensitive.
func (a *LogEventAdapter) Str(key, value string) LogEvent {
	if a.filter != nil {
		value = a.filter.FilterString(key, value)
	}
	return a.wrap(a.event.Str(key, value))
}

func (a *LogEventAdapter) Int(key string, value int) LogEvent {
	return a.wrap(a.event.Int(key, value))
}

func (a *LogEventAdapter) Int64(key string, value int64) LogEvent {
	return a.wrap(a.event.Int64(key, value))
}

func (a *LogEventAdapter) Bool(key string, value bool) LogEvent {
	return a.wrap(a.event.Bool(key, value))
}

func (a *LogEventAdapter) Dur(key string, d time.Duration) LogEvent {
	return a.wrap(a.event.Dur(key, d))
}

// Interface adds an arbitrary value; maps, slices and structs are filtered recursively.
func (a *LogEventAdapter) Interface(key string, i any) LogEvent {
	if a.filter != nil {
		i = a.filter.FilterValue(key, i)
	}
	return a.wrap(a.event.Interface(key, i))
}

// Bytes adds a raw byte field. Payload bytes are masked when the key is sensitive.
func (a *LogEventAdapter) Bytes(key string, val []byte) LogEvent {
	if a.filter != nil && a.filter.isSensitiveField(key) {
		return a.wrap(a.event.Str(key, a.filter.config.MaskValue))
	}
	return a.wrap(a.event.Bytes(key, val))
}

func (l *ZeroLogger) Info() LogEvent {
	return &LogEventAdapter{event: l.zlog.Info(), filter: l.filter}
}

func (l *ZeroLogger) Error() LogEvent {
	return &LogEventAdapter{event: l.zlog.Error(), filter: l.filter}
}

func (l *ZeroLogger) Debug() LogEvent {
	return &LogEventAdapter{event: l.zlog.Debug(), filter: l.filter}
}

func (l *ZeroLogger) Warn() LogEvent {
	return &LogEventAdapter{event: l.zlog.Warn(), filter: l.filter}
}

func (l *ZeroLogger) Fatal() LogEvent {
	return &LogEventAdapter{event: l.zlog.Fatal(), filter: l.filter}
}
