package openline

import (
	"context"
	"testing"
)

func activatedReceiptTracker(t *testing.T) (*fakeConn, *ReadReceiptTracker) {
	t.Helper()
	conn := newFakeConn()
	tracker := NewReadReceiptTracker(conn, Identity{UserID: "u-1", UserName: "Ada"})
	if err := tracker.Activate(context.Background(), "conv-1"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	return conn, tracker
}

func TestReadReceiptUpsert(t *testing.T) {
	conn, tracker := activatedReceiptTracker(t)

	conn.deliverMessageRead(MessageReadEvent{
		MessageID:   "m-1",
		ReadReceipt: ReadReceipt{UserID: "u-2", UserName: "Grace", ReadAt: "2026-08-25T10:00:00Z"},
	})
	conn.deliverMessageRead(MessageReadEvent{
		MessageID:   "m-1",
		ReadReceipt: ReadReceipt{UserID: "u-3", UserName: "Lin", ReadAt: "2026-08-25T10:01:00Z"},
	})
	// Re-read by the first user: ReadAt updates, position does not.
	conn.deliverMessageRead(MessageReadEvent{
		MessageID:   "m-1",
		ReadReceipt: ReadReceipt{UserID: "u-2", UserName: "Grace", ReadAt: "2026-08-25T10:05:00Z"},
	})

	got := tracker.Receipts("m-1")
	if len(got) != 2 {
		t.Fatalf("expected 2 receipts, got %d", len(got))
	}
	if got[0].UserID != "u-2" || got[0].ReadAt != "2026-08-25T10:05:00Z" {
		t.Errorf("expected in-place update keeping position, got %+v", got[0])
	}
	if got[1].UserID != "u-3" {
		t.Errorf("expected u-3 second, got %+v", got[1])
	}
}

func TestReadReceiptHasRead(t *testing.T) {
	conn, tracker := activatedReceiptTracker(t)

	conn.deliverMessageRead(MessageReadEvent{
		MessageID:   "m-1",
		ReadReceipt: ReadReceipt{UserID: "u-2", UserName: "Grace", ReadAt: "2026-08-25T10:00:00Z"},
	})

	if !tracker.HasRead("m-1", "u-2") {
		t.Error("expected u-2 to have read m-1")
	}
	if tracker.HasRead("m-1", "u-3") {
		t.Error("did not expect u-3 to have read m-1")
	}
	if tracker.HasRead("m-missing", "u-2") {
		t.Error("did not expect receipts on unknown message")
	}
}

func TestReadReceiptPerMessageIsolation(t *testing.T) {
	conn, tracker := activatedReceiptTracker(t)

	conn.deliverMessageRead(MessageReadEvent{
		MessageID:   "m-1",
		ReadReceipt: ReadReceipt{UserID: "u-2", ReadAt: "2026-08-25T10:00:00Z"},
	})
	conn.deliverMessageRead(MessageReadEvent{
		MessageID:   "m-2",
		ReadReceipt: ReadReceipt{UserID: "u-2", ReadAt: "2026-08-25T10:01:00Z"},
	})

	if len(tracker.Receipts("m-1")) != 1 || len(tracker.Receipts("m-2")) != 1 {
		t.Error("expected one receipt per message")
	}
	if tracker.Receipts("m-1")[0].ReadAt != "2026-08-25T10:00:00Z" {
		t.Error("m-2 receipt leaked into m-1")
	}
}

func TestMarkAsReadGuards(t *testing.T) {
	t.Run("inactive", func(t *testing.T) {
		conn := newFakeConn()
		tracker := NewReadReceiptTracker(conn, Identity{UserID: "u-1", UserName: "Ada"})
		if err := tracker.MarkAsRead(context.Background(), "m-1"); err != nil {
			t.Fatalf("MarkAsRead returned error while inactive: %v", err)
		}
		if len(conn.reads) != 0 {
			t.Errorf("expected no emit while inactive")
		}
	})

	t.Run("disconnected", func(t *testing.T) {
		conn, tracker := activatedReceiptTracker(t)
		conn.setConnected(false)
		if err := tracker.MarkAsRead(context.Background(), "m-1"); err != nil {
			t.Fatalf("MarkAsRead returned error while disconnected: %v", err)
		}
		if len(conn.reads) != 0 {
			t.Errorf("expected silent drop while disconnected")
		}
	})

	t.Run("connected", func(t *testing.T) {
		conn, tracker := activatedReceiptTracker(t)
		if err := tracker.MarkAsRead(context.Background(), "m-1"); err != nil {
			t.Fatalf("MarkAsRead failed: %v", err)
		}
		if len(conn.reads) != 1 {
			t.Fatalf("expected one emit, got %d", len(conn.reads))
		}
		call := conn.reads[0]
		if call["messageId"] != "m-1" || call["conversationId"] != "conv-1" ||
			call["userId"] != "u-1" || call["userName"] != "Ada" {
			t.Errorf("unexpected emit payload: %v", call)
		}
	})
}

func TestReadReceiptDeactivate(t *testing.T) {
	conn, tracker := activatedReceiptTracker(t)
	conn.deliverMessageRead(MessageReadEvent{
		MessageID:   "m-1",
		ReadReceipt: ReadReceipt{UserID: "u-2", ReadAt: "2026-08-25T10:00:00Z"},
	})

	tracker.Deactivate()

	if got := tracker.Receipts("m-1"); len(got) != 0 {
		t.Errorf("expected state cleared, got %v", got)
	}
	if n := conn.handlerCount(); n != 0 {
		t.Errorf("expected all handlers deregistered, %d remain", n)
	}
	tracker.Deactivate()
}

func TestReadStatusText(t *testing.T) {
	tests := []struct {
		name     string
		receipts []ReadReceipt
		want     string
	}{
		{"nobody", nil, ""},
		{"one reader", []ReadReceipt{{UserName: "Ada"}}, "Read by Ada"},
		{"two readers", []ReadReceipt{{UserName: "Ada"}, {UserName: "Grace"}}, "Read by Ada and Grace"},
		{"three readers", []ReadReceipt{{UserName: "Ada"}, {UserName: "Grace"}, {UserName: "Lin"}}, "Read by Ada and 2 others"},
		{"five readers", []ReadReceipt{{UserName: "Ada"}, {UserName: "Grace"}, {UserName: "Lin"}, {UserName: "Mo"}, {UserName: "Kai"}}, "Read by Ada and 4 others"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReadStatusText(tt.receipts); got != tt.want {
				t.Errorf("ReadStatusText() = %q, want %q", got, tt.want)
			}
		})
	}
}
