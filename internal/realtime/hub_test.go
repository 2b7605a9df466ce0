package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/questweaver/internal/platform/logger"
)

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubReconnectAndOrdering(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	channel := RunChannel(uuid.New().String())

	clientA := hub.NewSSEClient("a")
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventQuestRunCreated, Data: map[string]any{"seq": 1}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventQuestRunProgress, Data: map[string]any{"seq": 2}})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventQuestRunCreated {
		t.Fatalf("first event: got=%s", got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventQuestRunProgress {
		t.Fatalf("second event: got=%s", got.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("clientA outbound should be closed after disconnect")
	}
	if n := hub.Subscribers(channel); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}

	clientB := hub.NewSSEClient("b")
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventQuestRunDone})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != SSEEventQuestRunDone {
		t.Fatalf("reconnect event: got=%s", got.Event)
	}
}

func TestSSEHubOnlyDeliversSubscribedChannels(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	client := hub.NewSSEClient("a")
	hub.AddChannel(client, RunChannel("one"))
	hub.AddChannel(client, "  ")

	hub.Broadcast(SSEMessage{Channel: RunChannel("two"), Event: SSEEventQuestRunProgress})
	hub.Broadcast(SSEMessage{Event: SSEEventQuestRunProgress})
	select {
	case msg := <-client.Outbound:
		t.Fatalf("unexpected message %#v", msg)
	default:
	}

	hub.RemoveChannel(client, RunChannel("one"))
	hub.Broadcast(SSEMessage{Channel: RunChannel("one"), Event: SSEEventQuestRunProgress})
	select {
	case msg := <-client.Outbound:
		t.Fatalf("unexpected message after unsubscribe %#v", msg)
	default:
	}
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	client := hub.NewSSEClient("a")
	ch := RunChannel("full")
	hub.AddChannel(client, ch)
	for i := 0; i < outboundBuffer+5; i++ {
		hub.Broadcast(SSEMessage{Channel: ch, Event: SSEEventQuestRunProgress, Data: i})
	}
	if len(client.Outbound) != outboundBuffer {
		t.Fatalf("expected buffer to hold %d messages, got %d", outboundBuffer, len(client.Outbound))
	}
}

func TestSSEHubServeHTTPWritesEvents(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	client := hub.NewSSEClient("a")
	ch := RunChannel("http")
	hub.AddChannel(client, ch)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeHTTP(w, r, client)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	hub.Broadcast(SSEMessage{Channel: ch, Event: SSEEventQuestRunDone, Data: map[string]string{"run_id": "r1"}})

	br := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimSpace(line)
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimSpace(line)
		}
	}
	if eventLine != "event: QuestRunDone" || !strings.Contains(dataLine, `"run_id":"r1"`) {
		t.Fatalf("unexpected frame: %q %q", eventLine, dataLine)
	}
	hub.CloseClient(client)
}

func TestRunChannel(t *testing.T) {
	if RunChannel(" abc ") != "quest_run:abc" {
		t.Fatalf("RunChannel = %q", RunChannel(" abc "))
	}
	if !IsRunChannel("quest_run:abc") || IsRunChannel("quest_run:") || IsRunChannel("user:1") {
		t.Fatalf("IsRunChannel misclassified")
	}
}
