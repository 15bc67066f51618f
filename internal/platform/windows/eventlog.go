package windows

import "log"

// sink is the native event log; *eventlog.Log on windows.
type sink interface {
	Info(eid uint32, msg string) error
	Warning(eid uint32, msg string) error
	Error(eid uint32, msg string) error
	Close() error
}

// EventLogger mirrors service log lines to the Windows Event Log when the
// source is registered, and always to the standard log.
type EventLogger struct {
	source string
	sink   sink
}

func NewEventLogger(source string) *EventLogger {
	s, err := openSink(source)
	if err != nil {
		log.Printf("[windows] event log source %q unavailable, using standard log only: %v", source, err)
	}
	return &EventLogger{source: source, sink: s}
}

func (l *EventLogger) Info(eid uint32, msg string) {
	l.write("INFO", eid, msg, l.nativeInfo)
}

func (l *EventLogger) Warning(eid uint32, msg string) {
	l.write("WARN", eid, msg, l.nativeWarning)
}

// Error logs an error event. Api keys and session ids must not be passed here.
func (l *EventLogger) Error(eid uint32, msg string) {
	l.write("ERROR", eid, msg, l.nativeError)
}

func (l *EventLogger) Close() error {
	if l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

func (l *EventLogger) write(level string, eid uint32, msg string, native func(uint32, string) error) {
	if l.sink != nil {
		if err := native(eid, msg); err != nil {
			log.Printf("[windows] event log write failed: %v", err)
		}
	}
	log.Printf("[%s] %s: %s", level, l.source, msg)
}

func (l *EventLogger) nativeInfo(eid uint32, msg string) error    { return l.sink.Info(eid, msg) }
func (l *EventLogger) nativeWarning(eid uint32, msg string) error { return l.sink.Warning(eid, msg) }
func (l *EventLogger) nativeError(eid uint32, msg string) error   { return l.sink.Error(eid, msg) }
