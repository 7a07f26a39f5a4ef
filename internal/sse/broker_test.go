package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// drain collects everything buffered on ch.
func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func receive(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	all := b.Subscribe(0)
	one := b.Subscribe(7)
	if n := b.ClientCount(); n != 2 {
		t.Fatalf("clients = %d, want 2", n)
	}
	b.Unsubscribe(all)
	b.Unsubscribe(one)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestSequenceChanged_Message(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	b.SequenceChanged(3, []int64{9, 4})
	b.SequenceChanged(3, nil)

	first := receive(t, ch)
	if !strings.HasPrefix(first, "id: 1\nevent: sequence.updated\n") {
		t.Errorf("header of %q", first)
	}
	if !strings.Contains(first, `"article_ids":[9,4]`) || !strings.Contains(first, `"journal_id":3`) {
		t.Errorf("missing data in %q", first)
	}
	second := receive(t, ch)
	if !strings.HasPrefix(second, "id: 2\n") || !strings.Contains(second, `"article_ids":[]`) {
		t.Errorf("second = %q", second)
	}
}

func TestJournalScopedDelivery(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	all := b.Subscribe(0)
	defer b.Unsubscribe(all)
	one := b.Subscribe(1)
	defer b.Unsubscribe(one)
	two := b.Subscribe(2)
	defer b.Unsubscribe(two)

	b.JournalChanged("updated", 1)
	b.Publish(Event{Type: "maintenance", Data: map[string]string{}})
	time.Sleep(50 * time.Millisecond)

	if got := drain(all); len(got) != 2 {
		t.Errorf("unscoped client got %d events, want 2", len(got))
	}
	if got := drain(one); len(got) != 2 || !strings.Contains(got[0], "event: journal.updated") {
		t.Errorf("journal 1 client got %q", got)
	}
	if got := drain(two); len(got) != 1 || !strings.Contains(got[0], "event: maintenance") {
		t.Errorf("journal 2 client got %q", got)
	}
}

func TestArticleChanged_LinksThrottledPerJournal(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	b.ArticleChanged("created", 1, 10)
	b.ArticleChanged("updated", 1, 11)
	b.ArticleChanged("updated", 2, 20)
	// Unknown kinds are ignored.
	b.ArticleChanged("renamed", 1, 12)

	time.Sleep(50 * time.Millisecond)
	links := map[string]int{}
	articles := 0
	for _, s := range drain(ch) {
		switch {
		case strings.Contains(s, "event: links.updated"):
			if strings.Contains(s, `"journal_id":1`) {
				links["1"]++
			} else {
				links["2"]++
			}
		case strings.Contains(s, "event: article."):
			articles++
		}
	}

	if articles != 3 {
		t.Errorf("article events = %d, want 3", articles)
	}
	if links["1"] != 1 || links["2"] != 1 {
		t.Errorf("links events = %v, want one per journal", links)
	}
}

func TestServeHTTP_StreamsScopedEvents(t *testing.T) {
	b := NewBroker(100*time.Millisecond, WithKeepAlive(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?journal_id=1", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.ArticleChanged("updated", 1, 2)
	b.ArticleChanged("updated", 9, 3)
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, `"article_id":2`) {
		t.Errorf("handler output missing event: %q", body)
	}
	if strings.Contains(body, `"article_id":3`) {
		t.Errorf("handler leaked another journal's event: %q", body)
	}
	if !strings.Contains(body, ": ping\n\n") {
		t.Errorf("no keepalive in %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestServeHTTP_BadJournalID(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	w := httptest.NewRecorder()
	b.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events?journal_id=abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	// The client buffer holds 64 messages; the rest are dropped, not queued.
	for i := 0; i < 70; i++ {
		b.JournalChanged("updated", 1)
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(drain(ch)); n != 64 {
		t.Errorf("buffered = %d, want 64", n)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe(0)

	b.Close()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	if _, ok := <-b.Subscribe(1); ok {
		t.Error("subscribe after close should return a closed channel")
	}
	b.ArticleChanged("updated", 1, 1)
	b.SequenceChanged(1, nil)
}
