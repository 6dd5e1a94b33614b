package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/larder/internal/record"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		send: make(chan []byte, sendBufferSize),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	// Should not panic
	hub.Unregister(c1)
	hub.Close()
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
	if _, ok := <-c2.send; ok {
		t.Error("Close should close the send channel")
	}
}

func TestChangeMessages(t *testing.T) {
	change := record.Change{Events: []record.Event{
		{Table: "list_items", Action: record.ActionUpdated, ID: "a"},
		{Table: "lists", Action: record.ActionDeleted, ID: "l1"},
		{Table: "list_items", Action: record.ActionUpdated, ID: "b"},
		{Table: "list_items", Action: record.ActionDeleted, ID: "c"},
	}}

	msgs := ChangeMessages(change)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3: %+v", len(msgs), msgs)
	}
	first := msgs[0]
	if first.Type != "list_items_updated" || first.Table != "list_items" || first.Action != "updated" {
		t.Errorf("first = %+v", first)
	}
	if len(first.IDs) != 2 || first.IDs[0] != "a" || first.IDs[1] != "b" {
		t.Errorf("first ids = %v", first.IDs)
	}
	if msgs[1].Type != "lists_deleted" || msgs[2].Type != "list_items_deleted" {
		t.Errorf("order = %s, %s", msgs[1].Type, msgs[2].Type)
	}

	if len(ChangeMessages(record.Change{})) != 0 {
		t.Error("empty change should produce no messages")
	}
}

func TestPublishChange(t *testing.T) {
	hub := NewHub(slog.Default())
	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	hub.PublishChange(record.Change{Events: []record.Event{
		{Table: "pantry_items", Action: record.ActionCreated, ID: "p1"},
	}})

	for _, c := range []*Client{c1, c2} {
		got := receive(t, c)
		if got.Type != "pantry_items_created" || len(got.IDs) != 1 || got.IDs[0] != "p1" {
			t.Errorf("got %+v", got)
		}
	}
}

func TestBroadcastStatus(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub)
	hub.Register(c)

	hub.Broadcast(NewMessage(TypeBackupStatus, map[string]string{"state": "running"}))

	got := receive(t, c)
	if got.Type != TypeBackupStatus {
		t.Errorf("type = %q", got.Type)
	}
	data, ok := got.Data.(map[string]any)
	if !ok || data["state"] != "running" {
		t.Errorf("data = %#v", got.Data)
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub)
	hub.Register(c)

	for range sendBufferSize {
		hub.Broadcast(NewMessage(TypeSyncStatus, nil))
	}
	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage(TypeSyncStatus, "dropped"))

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("expected %d queued messages, got %d", sendBufferSize, got)
	}
	hub.Unregister(c)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			hub.Broadcast(NewMessage(TypeSyncStatus, nil))
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestHandleWebSocket(t *testing.T) {
	hub := NewHub(slog.Default())
	srv := httptest.NewServer(HandleWebSocket(hub, nil, slog.Default()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	for hub.ClientCount() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	hub.PublishChange(record.Change{Events: []record.Event{
		{Table: "lists", Action: record.ActionCreated, ID: "l1"},
	}})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "lists_created" || got.IDs[0] != "l1" {
		t.Errorf("got %+v", got)
	}

	hub.Close()
	if _, _, err := conn.Read(ctx); ws.CloseStatus(err) != ws.StatusGoingAway {
		t.Errorf("close status = %v, want going away", ws.CloseStatus(err))
	}
}
