package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Memory_AppendAndHistory(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-a", RoleUser, "hello"); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if err := s.Append(ctx, "sess-a", RoleAssistant, "world"); err != nil {
		t.Fatalf("append assistant: %v", err)
	}

	msgs, err := s.History(ctx, "sess-a")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "hello" {
		t.Errorf("msg[0]: want user/hello, got %s/%s", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "world" {
		t.Errorf("msg[1]: want assistant/world, got %s/%s", msgs[1].Role, msgs[1].Content)
	}
}

func Test_Memory_AppendEmptySessionRejected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	err := s.Append(context.Background(), "", RoleUser, "orphan")
	if !errors.Is(err, rag.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func Test_Memory_RecentLimitRespected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 6 {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := s.Append(ctx, "sess-b", role, "msg"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := s.Recent(ctx, "sess-b", 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 4 {
		t.Errorf("want 4 messages, got %d", len(msgs))
	}
}

func Test_Memory_SessionIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-x", RoleUser, "from x"); err != nil {
		t.Fatalf("append x: %v", err)
	}
	if err := s.Append(ctx, "sess-y", RoleUser, "from y"); err != nil {
		t.Fatalf("append y: %v", err)
	}

	msgsX, err := s.History(ctx, "sess-x")
	if err != nil {
		t.Fatalf("history x: %v", err)
	}
	msgsY, err := s.History(ctx, "sess-y")
	if err != nil {
		t.Fatalf("history y: %v", err)
	}

	if len(msgsX) != 1 || msgsX[0].Content != "from x" {
		t.Errorf("session x isolation failed: got %v", msgsX)
	}
	if len(msgsY) != 1 || msgsY[0].Content != "from y" {
		t.Errorf("session y isolation failed: got %v", msgsY)
	}
}

func Test_Memory_UnknownSessionReturnsEmpty(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	msgs, err := s.History(context.Background(), "sess-ghost")
	if err != nil {
		t.Fatalf("history empty: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("want 0 messages, got %d", len(msgs))
	}
}

func Test_Memory_OldestFirstOrdering(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	contents := []string{"first", "second", "third"}
	for _, c := range contents {
		if err := s.Append(ctx, "sess-order", RoleUser, c); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := s.History(ctx, "sess-order")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for i, want := range contents {
		if msgs[i].Content != want {
			t.Errorf("msg[%d]: want %q, got %q", i, want, msgs[i].Content)
		}
	}
}

func Test_Memory_ClearRemovesOnlyTargetSession(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-keep", RoleUser, "keep me"); err != nil {
		t.Fatalf("append keep: %v", err)
	}
	if err := s.Append(ctx, "sess-drop", RoleUser, "drop me"); err != nil {
		t.Fatalf("append drop: %v", err)
	}

	if err := s.Clear(ctx, "sess-drop"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	dropped, err := s.History(ctx, "sess-drop")
	if err != nil {
		t.Fatalf("history dropped: %v", err)
	}
	if len(dropped) != 0 {
		t.Errorf("cleared session still has %d messages", len(dropped))
	}

	kept, err := s.History(ctx, "sess-keep")
	if err != nil {
		t.Fatalf("history kept: %v", err)
	}
	if len(kept) != 1 {
		t.Errorf("unrelated session lost messages: got %d", len(kept))
	}
}

func Test_Memory_ClearUnknownSessionIsNoop(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if err := s.Clear(context.Background(), "sess-never-existed"); err != nil {
		t.Fatalf("clear unknown session: %v", err)
	}
}

func Test_Memory_Stats(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-1", RoleUser, "a"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, "sess-1", RoleAssistant, "b"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, "sess-2", RoleUser, "c"); err != nil {
		t.Fatalf("append: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Sessions != 2 {
		t.Errorf("sessions = %d, want 2", st.Sessions)
	}
	if st.Messages != 3 {
		t.Errorf("messages = %d, want 3", st.Messages)
	}
}
