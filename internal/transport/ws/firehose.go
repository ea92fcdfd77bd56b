// Package ws streams upstream API responses to the central tracking
// collector over an outbound websocket. Delivery is best effort: the queue
// is bounded and events are dropped rather than ever stalling an
// evaluation.
package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"skyvault.gg/internal/protocol"
)

const (
	// maxQueue caps buffered events. The bound exists because an offline
	// collector once grew an unbounded queue until the process died.
	maxQueue = 1000

	reconnectWait = 3 * time.Second
	idlePoll      = 200 * time.Millisecond
	writeTimeout  = 10 * time.Second
)

type Firehose struct {
	url        string
	clientName string
	log        *log.Logger

	mu      sync.Mutex
	queue   []protocol.EventMsg
	dropped int
}

func NewFirehose(url, clientName string, logger *log.Logger) *Firehose {
	return &Firehose{url: url, clientName: clientName, log: logger}
}

// Publish enqueues one event. Never blocks; when the collector is behind,
// the oldest unsent events are simply lost.
func (f *Firehose) Publish(ev protocol.EventMsg) {
	ev.Method = protocol.MethodEvent
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) >= maxQueue {
		f.dropped++
		return
	}
	f.queue = append(f.queue, ev)
}

// Dropped reports how many events were discarded due to backpressure.
func (f *Firehose) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Run connects, logs in, and drains the queue until ctx is done,
// reconnecting with a fixed pause after any failure.
func (f *Firehose) Run(ctx context.Context) {
	for {
		if err := f.session(ctx); err != nil {
			f.logf("firehose disconnected: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectWait):
		}
	}
}

func (f *Firehose) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(protocol.LoginMsg{Method: protocol.MethodLogin, Content: f.clientName}); err != nil {
		return err
	}
	f.logf("firehose connected to %s", f.url)

	for {
		ev, ok := f.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idlePoll):
			}
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			// Put it back; it is the next one out after reconnect.
			f.requeue(ev)
			return err
		}
	}
}

func (f *Firehose) pop() (protocol.EventMsg, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return protocol.EventMsg{}, false
	}
	ev := f.queue[0]
	f.queue = f.queue[1:]
	return ev, true
}

func (f *Firehose) requeue(ev protocol.EventMsg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append([]protocol.EventMsg{ev}, f.queue...)
}

func (f *Firehose) logf(format string, args ...any) {
	if f.log != nil {
		f.log.Printf(format, args...)
	}
}
