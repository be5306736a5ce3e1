package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verdiyev/caremate/internal/domain"
	"github.com/verdiyev/caremate/internal/llm"
	"github.com/verdiyev/caremate/internal/logging"
	"github.com/verdiyev/caremate/internal/session"
)

func testInstruction(p domain.Profile) string {
	return fmt.Sprintf("You are assisting %s (%d, %s).", p.Name, p.Age, p.Gender)
}

func testOrchestrator(t *testing.T, client llm.Client) (*Orchestrator, session.Store) {
	t.Helper()
	store := session.NewMemoryStore()
	orch := NewOrchestrator(
		Config{Model: "test-model", MaxMessages: 20, GenerateTimeout: 5 * time.Second},
		client,
		store,
		testInstruction,
		logging.New(nil, "silent"),
	)
	return orch, store
}

func turnReq(name string, sessionID, msg string) TurnRequest {
	return TurnRequest{
		Profile:   domain.Profile{Name: name, Age: 30, Gender: domain.GenderFemale},
		Message:   msg,
		SessionID: sessionID,
	}
}

func TestHandleTurn_SeedsNewSession(t *testing.T) {
	orch, store := testOrchestrator(t, &llm.MockClient{})

	result, err := orch.HandleTurn(context.Background(), turnReq("Aylin", "s1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "mock response", result.Reply)
	assert.Equal(t, "s1", result.SessionID)

	history := store.History(domain.NewSessionKey("Aylin", "s1"))
	require.Len(t, history, 3)
	assert.Equal(t, domain.RoleSystem, history[0].Role)
	assert.Contains(t, history[0].Content, "Aylin")
	assert.Equal(t, domain.RoleUser, history[1].Role)
	assert.Equal(t, "hello", history[1].Content)
	assert.Equal(t, domain.RoleAssistant, history[2].Role)
}

func TestHandleTurn_SeedsOnlyOnce(t *testing.T) {
	orch, store := testOrchestrator(t, &llm.MockClient{})
	ctx := context.Background()

	_, err := orch.HandleTurn(ctx, turnReq("aylin", "s1", "first"))
	require.NoError(t, err)
	_, err = orch.HandleTurn(ctx, turnReq("aylin", "s1", "second"))
	require.NoError(t, err)

	history := store.History(domain.NewSessionKey("aylin", "s1"))
	require.Len(t, history, 5)

	systemCount := 0
	for _, m := range history {
		if m.Role == domain.RoleSystem {
			systemCount++
		}
	}
	assert.Equal(t, 1, systemCount)
	assert.Equal(t, domain.RoleSystem, history[0].Role)
}

func TestHandleTurn_SameName_DifferentSessions_Independent(t *testing.T) {
	orch, store := testOrchestrator(t, &llm.MockClient{})
	ctx := context.Background()

	_, err := orch.HandleTurn(ctx, turnReq("aylin", "s1", "about s1"))
	require.NoError(t, err)
	_, err = orch.HandleTurn(ctx, turnReq("aylin", "s2", "about s2"))
	require.NoError(t, err)

	h1 := store.History(domain.NewSessionKey("aylin", "s1"))
	h2 := store.History(domain.NewSessionKey("aylin", "s2"))

	require.Len(t, h1, 3)
	require.Len(t, h2, 3)
	assert.Equal(t, "about s1", h1[1].Content)
	assert.Equal(t, "about s2", h2[1].Content)
}

func TestHandleTurn_SendsHistoryToProvider(t *testing.T) {
	var captured []llm.Message
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			captured = req.Messages
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}
	orch, _ := testOrchestrator(t, client)
	ctx := context.Background()

	_, err := orch.HandleTurn(ctx, turnReq("aylin", "s1", "first"))
	require.NoError(t, err)
	_, err = orch.HandleTurn(ctx, turnReq("aylin", "s1", "second"))
	require.NoError(t, err)

	// system, first, ok, second
	require.Len(t, captured, 4)
	assert.Equal(t, llm.RoleSystem, captured[0].Role)
	assert.Equal(t, "first", captured[1].Content)
	assert.Equal(t, "ok", captured[2].Content)
	assert.Equal(t, "second", captured[3].Content)
}

func TestHandleTurn_GenerateFailure_AppendsNothing(t *testing.T) {
	boom := errors.New("provider down")
	fail := true
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if fail {
				return nil, boom
			}
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}
	orch, store := testOrchestrator(t, client)
	ctx := context.Background()
	key := domain.NewSessionKey("aylin", "s1")

	// Build up a healthy session first.
	fail = false
	_, err := orch.HandleTurn(ctx, turnReq("aylin", "s1", "q1"))
	require.NoError(t, err)
	before := store.History(key)

	// Now a failing turn leaves the history untouched.
	fail = true
	_, err = orch.HandleTurn(ctx, turnReq("aylin", "s1", "q2"))
	require.Error(t, err)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, before, store.History(key))

	// A retry succeeds and resumes the same session.
	fail = false
	_, err = orch.HandleTurn(ctx, turnReq("aylin", "s1", "q2"))
	require.NoError(t, err)
	assert.Len(t, store.History(key), len(before)+2)
}

func TestHandleTurn_FirstTurnFailure_KeepsOnlySeed(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, errors.New("timeout")
		},
	}
	orch, store := testOrchestrator(t, client)

	_, err := orch.HandleTurn(context.Background(), turnReq("aylin", "s1", "hello"))
	require.Error(t, err)

	// The instruction is seeded before the model call; the failed turn itself
	// leaves no user or assistant message behind.
	history := store.History(domain.NewSessionKey("aylin", "s1"))
	require.Len(t, history, 1)
	assert.Equal(t, domain.RoleSystem, history[0].Role)
}

func TestHandleTurn_ManufacturesSessionID(t *testing.T) {
	orch, _ := testOrchestrator(t, &llm.MockClient{})
	ctx := context.Background()

	r1, err := orch.HandleTurn(ctx, turnReq("aylin", "", "hi"))
	require.NoError(t, err)
	r2, err := orch.HandleTurn(ctx, turnReq("aylin", "", "hi again"))
	require.NoError(t, err)

	assert.NotEmpty(t, r1.SessionID)
	assert.NotEmpty(t, r2.SessionID)
	// Each call without a session id starts a fresh thread.
	assert.NotEqual(t, r1.SessionID, r2.SessionID)
}

func TestHandleTurn_ReturnedSessionIDContinuesThread(t *testing.T) {
	orch, store := testOrchestrator(t, &llm.MockClient{})
	ctx := context.Background()

	r1, err := orch.HandleTurn(ctx, turnReq("aylin", "", "hi"))
	require.NoError(t, err)

	_, err = orch.HandleTurn(ctx, turnReq("aylin", r1.SessionID, "more"))
	require.NoError(t, err)

	history := store.History(domain.NewSessionKey("aylin", r1.SessionID))
	assert.Len(t, history, 5)
}

func TestHandleTurn_TrimsLongSessions(t *testing.T) {
	store := session.NewMemoryStore()
	orch := NewOrchestrator(
		Config{Model: "test-model", MaxMessages: 7, GenerateTimeout: time.Second},
		&llm.MockClient{},
		store,
		testInstruction,
		logging.New(nil, "silent"),
	)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := orch.HandleTurn(ctx, turnReq("aylin", "s1", fmt.Sprintf("q%d", i)))
		require.NoError(t, err)
	}

	history := store.History(domain.NewSessionKey("aylin", "s1"))
	require.Len(t, history, 7)
	assert.Equal(t, domain.RoleSystem, history[0].Role)
	assert.Equal(t, "q9", history[5].Content)
}

func TestHandleTurn_DistinctKeysRunConcurrently(t *testing.T) {
	orch, store := testOrchestrator(t, &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			time.Sleep(5 * time.Millisecond)
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := orch.HandleTurn(ctx, turnReq(fmt.Sprintf("user%d", i), "s", "hi"))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		history := store.History(domain.NewSessionKey(fmt.Sprintf("user%d", i), "s"))
		// 1 system + 5 user/assistant pairs
		assert.Len(t, history, 11)
	}
}

func TestHandleTurn_SameKeySerialized(t *testing.T) {
	orch, store := testOrchestrator(t, &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			time.Sleep(2 * time.Millisecond)
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := orch.HandleTurn(ctx, turnReq("aylin", "s1", fmt.Sprintf("q%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history := store.History(domain.NewSessionKey("aylin", "s1"))
	require.Len(t, history, 21)
	assert.Equal(t, domain.RoleSystem, history[0].Role)

	// Interleaved turns still produce strictly alternating user/assistant pairs.
	for i := 1; i < len(history); i += 2 {
		assert.Equal(t, domain.RoleUser, history[i].Role)
		assert.Equal(t, domain.RoleAssistant, history[i+1].Role)
	}
}

func TestHandleTurnStream_DeliversDeltas(t *testing.T) {
	orch, store := testOrchestrator(t, &llm.MockClient{
		StreamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			ch := make(chan llm.StreamEvent, 3)
			ch <- llm.StreamEvent{Type: "delta", Content: "hel"}
			ch <- llm.StreamEvent{Type: "delta", Content: "lo"}
			ch <- llm.StreamEvent{Type: "done", Response: &llm.CompletionResponse{Content: "hello"}}
			close(ch)
			return ch, nil
		},
	})

	var deltas []string
	result, err := orch.HandleTurnStream(context.Background(), turnReq("aylin", "s1", "hi"), func(evt llm.StreamEvent) {
		deltas = append(deltas, evt.Content)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"hel", "lo"}, deltas)
	assert.Equal(t, "hello", result.Reply)

	history := store.History(domain.NewSessionKey("aylin", "s1"))
	require.Len(t, history, 3)
	assert.Equal(t, "hello", history[2].Content)
}

func TestHandleTurnStream_ErrorAppendsNothing(t *testing.T) {
	orch, store := testOrchestrator(t, &llm.MockClient{
		StreamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			ch := make(chan llm.StreamEvent, 2)
			ch <- llm.StreamEvent{Type: "delta", Content: "par"}
			ch <- llm.StreamEvent{Type: "error", Error: "connection reset"}
			close(ch)
			return ch, nil
		},
	})

	_, err := orch.HandleTurnStream(context.Background(), turnReq("aylin", "s1", "hi"), func(llm.StreamEvent) {})
	require.Error(t, err)

	var genErr *GenerationError
	assert.ErrorAs(t, err, &genErr)

	history := store.History(domain.NewSessionKey("aylin", "s1"))
	require.Len(t, history, 1)
	assert.Equal(t, domain.RoleSystem, history[0].Role)
}

func TestGenerationError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &GenerationError{Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}
