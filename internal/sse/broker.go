// Package sse implements a Server-Sent Events broker for journal and article
// change notifications.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event is one notification. JournalID scopes delivery: subscribers of
// another journal do not receive it. Zero reaches every subscriber.
type Event struct {
	Type      string
	JournalID int64
	Data      any
}

type subscription struct {
	ch        chan []byte
	journalID int64
}

type articleEventReq struct {
	kind      string
	journalID int64
	articleID int64
}

// Broker fans events out to SSE clients.
//
// A single goroutine owns the client set, the event counter and the
// per-journal links throttle; the public methods talk to it over channels.
type Broker struct {
	linksMin  time.Duration
	keepAlive time.Duration

	subscribeCh    chan subscription
	unsubscribeCh  chan chan []byte
	publishCh      chan Event
	articleEventCh chan articleEventReq
	countReqCh     chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets how often idle streams get a comment line so proxies
// keep them open.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// NewBroker creates a broker. links.updated is sent at most once per
// linksThrottle for each journal.
func NewBroker(linksThrottle time.Duration, opts ...Option) *Broker {
	if linksThrottle <= 0 {
		linksThrottle = 2 * time.Second
	}

	b := &Broker{
		linksMin:       linksThrottle,
		keepAlive:      15 * time.Second,
		subscribeCh:    make(chan subscription),
		unsubscribeCh:  make(chan chan []byte),
		publishCh:      make(chan Event, 256),
		articleEventCh: make(chan articleEventReq, 256),
		countReqCh:     make(chan chan int),
		stopCh:         make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]int64)
	lastLinks := make(map[int64]time.Time)
	var seq uint64

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		for ch, journalID := range clients {
			if journalID != 0 && event.JournalID != 0 && journalID != event.JournalID {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall every other stream.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.journalID

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.articleEventCh:
			switch req.kind {
			case "created", "updated", "deleted":
			default:
				continue
			}
			broadcast(Event{Type: "article." + req.kind, JournalID: req.journalID, Data: map[string]int64{
				"journal_id": req.journalID,
				"article_id": req.articleID,
			}})

			// Any article change can add or drop cross-references.
			now := time.Now()
			if now.Sub(lastLinks[req.journalID]) >= b.linksMin {
				lastLinks[req.journalID] = now
				broadcast(Event{Type: "links.updated", JournalID: req.journalID, Data: map[string]int64{
					"journal_id": req.journalID,
				}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker and closes every client channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client for the events of journalID, or for all
// events when journalID is zero.
func (b *Broker) Subscribe(journalID int64) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, journalID: journalID}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to the matching clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// ArticleChanged publishes article.<kind> and a throttled links.updated event.
func (b *Broker) ArticleChanged(kind string, journalID, articleID int64) {
	if b.closed.Load() {
		return
	}
	select {
	case b.articleEventCh <- articleEventReq{kind: kind, journalID: journalID, articleID: articleID}:
	case <-b.stopped:
	}
}

// JournalChanged publishes journal.<kind>.
func (b *Broker) JournalChanged(kind string, journalID int64) {
	b.Publish(Event{Type: "journal." + kind, JournalID: journalID, Data: map[string]int64{"journal_id": journalID}})
}

// SequenceChanged publishes the stored order of a journal.
func (b *Broker) SequenceChanged(journalID int64, ids []int64) {
	if ids == nil {
		ids = []int64{}
	}
	b.Publish(Event{Type: "sequence.updated", JournalID: journalID, Data: map[string]any{
		"journal_id":  journalID,
		"article_ids": ids,
	}})
}

// ServeHTTP streams events (GET /api/events[?journal_id=N]).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var journalID int64
	if v := r.URL.Query().Get("journal_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid journal_id", http.StatusBadRequest)
			return
		}
		journalID = id
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(journalID)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
