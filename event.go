package kvcan

import (
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"sync"
)

type EventType int

func (et EventType) String() string {
	switch et {
	case EventTypeError:
		return "ERROR"
	case EventTypeWarning:
		return "WARN"
	case EventTypeInfo:
		return "INFO"
	case EventTypeDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

const (
	EventTypeError EventType = iota
	EventTypeWarning
	EventTypeInfo
	EventTypeDebug
)

type Event struct {
	Type    EventType
	Details string
}

func (e Event) String() string {
	return fmt.Sprintf("[%s] %s", e.Type.String(), e.Details)
}

// eventer owns the event and fatal error channels of a channel.
type eventer struct {
	name  string
	debug bool

	errOnce sync.Once
	errChan chan error

	evtChan chan Event
}

func newEventer(name string, debug bool) *eventer {
	return &eventer{
		name:    name,
		debug:   debug,
		errChan: make(chan error, 1),
		evtChan: make(chan Event, 100),
	}
}

// fatal records an error that ends communication with the device.
func (e *eventer) fatal(err error) {
	e.errOnce.Do(func() {
		select {
		case e.errChan <- err:
		default:
			_, file, no, ok := runtime.Caller(1)
			if ok {
				log.Printf("%s:%d error channel full: %v\n", filepath.Base(file), no, err)
			} else {
				log.Printf("error channel full: %v", err)
			}
		}
	})
}

func (e *eventer) send(eventType EventType, details string) {
	select {
	case e.evtChan <- Event{Type: eventType, Details: details}:
	default:
		_, file, no, ok := runtime.Caller(2)
		if ok {
			log.Printf("%s#%d %s event channel full: %s\n", filepath.Base(file), no, e.name, details)
		} else {
			log.Printf("%s event channel full: %s", e.name, details)
		}
	}
}

func (e *eventer) errorf(format string, a ...any) {
	e.send(EventTypeError, fmt.Sprintf(format, a...))
}

func (e *eventer) warnf(format string, a ...any) {
	e.send(EventTypeWarning, fmt.Sprintf(format, a...))
}

func (e *eventer) infof(format string, a ...any) {
	e.send(EventTypeInfo, fmt.Sprintf(format, a...))
}

// debugf is a no-op unless debug output is enabled.
func (e *eventer) debugf(format string, a ...any) {
	if !e.debug {
		return
	}
	e.send(EventTypeDebug, fmt.Sprintf(format, a...))
}
