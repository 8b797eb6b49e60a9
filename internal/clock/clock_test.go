package clock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(10)
	if got := c.Now(); got != 10 {
		t.Fatalf("Now: got %d, want 10", got)
	}

	if got := c.Advance(5); got != 15 {
		t.Errorf("Advance: got %d, want 15", got)
	}

	c.Set(3)
	if got := c.Now(); got != 3 {
		t.Errorf("Set: got %d, want 3", got)
	}
}

// slotServer confirms one slotSubscribe and then pushes the given slots.
func slotServer(t *testing.T, slots []uint64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "slotSubscribe" {
			t.Errorf("expected slotSubscribe, got %s", req.Method)
			return
		}

		resp := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":7}`, req.ID)
		if err := c.WriteMessage(websocket.TextMessage, []byte(resp)); err != nil {
			return
		}

		for _, slot := range slots {
			notif := fmt.Sprintf(`{"jsonrpc":"2.0","method":"slotNotification","params":{"subscription":7,"result":{"slot":%d,"parent":%d,"root":0}}}`, slot, slot-1)
			if err := c.WriteMessage(websocket.TextMessage, []byte(notif)); err != nil {
				return
			}
		}

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestSlotClock_FollowsNotifications(t *testing.T) {
	server := slotServer(t, []uint64{100, 101, 105})
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := NewSlotClock(ctx, wsURL, nil, nil)
	if err != nil {
		t.Fatalf("NewSlotClock: %v", err)
	}
	defer c.Close()

	if err := c.WaitFor(ctx, 105); err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if got := c.Now(); got != 105 {
		t.Errorf("Now: got %d, want 105", got)
	}
}

func TestSlotClock_NeverMovesBackwards(t *testing.T) {
	server := slotServer(t, []uint64{200, 150, 201})
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := NewSlotClock(ctx, wsURL, nil, nil)
	if err != nil {
		t.Fatalf("NewSlotClock: %v", err)
	}
	defer c.Close()

	if err := c.WaitFor(ctx, 201); err != nil {
		t.Fatalf("WaitFor: %v", err)
	}

	c.observe(10)
	if got := c.Now(); got != 201 {
		t.Errorf("Now: got %d, want 201", got)
	}
}

func TestSlotClock_DialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewSlotClock(ctx, "ws://127.0.0.1:1", nil, nil)
	if err == nil {
		t.Fatal("expected dial error")
	}
}

func TestSlotClock_CloseIsIdempotent(t *testing.T) {
	server := slotServer(t, nil)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	c, err := NewSlotClock(context.Background(), wsURL, nil, nil)
	if err != nil {
		t.Fatalf("NewSlotClock: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
