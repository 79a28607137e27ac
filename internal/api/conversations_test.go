package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/duckmesh/tabletalk/internal/chat"
	"github.com/duckmesh/tabletalk/internal/conversation"
)

type fakeResponder struct {
	mu         sync.Mutex
	utterances []conversation.Utterance
	respond    func(conversation.Utterance) (chat.Response, error)
}

func (f *fakeResponder) Respond(_ context.Context, _ string, u conversation.Utterance) (chat.Response, error) {
	f.mu.Lock()
	f.utterances = append(f.utterances, u)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(u)
	}
	return chat.Response{
		Outcome: chat.OutcomeOK,
		Message: "The answer is 3.",
		Turn: conversation.Turn{
			TurnID:    "turn-1",
			Utterance: u.Text,
			Category:  "data_question",
			TargetID:  "deals_a1",
			Statement: `SELECT COUNT(*) FROM "deals_a1"`,
			Outcome:   "ok",
		},
	}, nil
}

type failingConversations struct {
	loadErr   error
	appendErr error
}

func (f failingConversations) Load(_ context.Context, _, conversationID string) (conversation.History, error) {
	if f.loadErr != nil {
		return conversation.History{}, f.loadErr
	}
	return conversation.NewHistory(conversationID), nil
}

func (f failingConversations) Append(context.Context, string, string, conversation.Turn) error {
	return f.appendErr
}

func postMessage(h http.Handler, userID, conversationID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/"+conversationID+"/messages", strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPostMessageRecordsTurnAndFeedsHistoryBack(t *testing.T) {
	responder := &fakeResponder{}
	store := conversation.NewMemoryStore()
	h := newDatasetsHandler(t, Dependencies{Pipeline: responder, Conversations: store})

	first := postMessage(h, "u1", "c1", `{"message":"how many deals?"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", first.Code, first.Body.String())
	}
	var body struct {
		ConversationID string `json:"conversation_id"`
		Message        string `json:"message"`
		Outcome        string `json:"outcome"`
		Retryable      bool   `json:"retryable"`
	}
	if err := json.Unmarshal(first.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body.ConversationID != "c1" || body.Outcome != "ok" || body.Message != "The answer is 3." || body.Retryable {
		t.Fatalf("body = %#v", body)
	}

	second := postMessage(h, "u1", "c1", `{"message":"and by stage?"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d", second.Code)
	}
	if len(responder.utterances) != 2 {
		t.Fatalf("respond calls = %d", len(responder.utterances))
	}
	if got := responder.utterances[1].History; got.Len() != 1 || got.LastTarget() != "deals_a1" {
		t.Fatalf("second history = %#v", got.Turns())
	}

	other := postMessage(h, "u2", "c1", `{"message":"hi"}`)
	if other.Code != http.StatusOK {
		t.Fatalf("other status = %d", other.Code)
	}
	if got := responder.utterances[2].History; got.Len() != 0 {
		t.Fatalf("another user's conversation leaked %d turns", got.Len())
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/c1", nil)
	req.Header.Set("X-User-ID", "u1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("history status = %d", rr.Code)
	}
	var history struct {
		Turns     []conversation.Turn `json:"turns"`
		TurnCount int                 `json:"turn_count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &history); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if history.TurnCount != 2 || history.Turns[0].Utterance != "how many deals?" {
		t.Fatalf("history = %#v", history)
	}
}

func TestPostMessageRetryableOutcome(t *testing.T) {
	responder := &fakeResponder{respond: func(u conversation.Utterance) (chat.Response, error) {
		return chat.Response{
			Outcome: chat.OutcomeExecutionTimeout,
			Message: chat.OutcomeExecutionTimeout.Message(),
			Turn:    conversation.Turn{Utterance: u.Text, Outcome: string(chat.OutcomeExecutionTimeout)},
		}, nil
	}}
	h := newDatasetsHandler(t, Dependencies{Pipeline: responder, Conversations: conversation.NewMemoryStore()})

	rr := postMessage(h, "u1", "c1", `{"message":"sum everything"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeError(t, rr)
	if body["outcome"] != "execution_timeout" || body["retryable"] != true {
		t.Fatalf("body = %#v", body)
	}
}

func TestPostMessageValidation(t *testing.T) {
	h := newDatasetsHandler(t, Dependencies{Pipeline: &fakeResponder{}, Conversations: conversation.NewMemoryStore()})

	cases := []struct {
		name   string
		user   string
		body   string
		status int
		code   string
	}{
		{name: "no user", body: `{"message":"hi"}`, status: http.StatusBadRequest, code: "USER_REQUIRED"},
		{name: "bad json", user: "u1", body: `{`, status: http.StatusBadRequest, code: "INVALID_JSON"},
		{name: "blank message", user: "u1", body: `{"message":"   "}`, status: http.StatusBadRequest, code: "INVALID_ARGUMENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postMessage(h, tc.user, "c1", tc.body)
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			if body := decodeError(t, rr); body["error_code"] != tc.code {
				t.Fatalf("body = %#v", body)
			}
		})
	}
}

func TestPostMessageRejectsConcurrentUtterance(t *testing.T) {
	gate := conversation.NewGate()
	release, err := gate.Acquire("u1/c1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	responder := &fakeResponder{}
	h := newDatasetsHandler(t, Dependencies{Pipeline: responder, Conversations: conversation.NewMemoryStore(), Gate: gate})

	rr := postMessage(h, "u1", "c1", `{"message":"how many deals?"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeError(t, rr); body["error_code"] != "CONVERSATION_BUSY" {
		t.Fatalf("body = %#v", body)
	}
	if len(responder.utterances) != 0 {
		t.Fatal("pipeline ran while the conversation was busy")
	}

	release()
	if rr := postMessage(h, "u1", "c1", `{"message":"how many deals?"}`); rr.Code != http.StatusOK {
		t.Fatalf("status after release = %d", rr.Code)
	}
	if rr := postMessage(h, "u1", "c2", `{"message":"how many deals?"}`); rr.Code != http.StatusOK {
		t.Fatalf("other conversation status = %d", rr.Code)
	}
}

func TestPostMessageStoreFailures(t *testing.T) {
	cases := []struct {
		name   string
		store  failingConversations
		status int
		code   string
	}{
		{name: "load", store: failingConversations{loadErr: errors.New("pg down")}, status: http.StatusServiceUnavailable, code: "HISTORY_UNAVAILABLE"},
		{name: "append", store: failingConversations{appendErr: errors.New("pg down")}, status: http.StatusInternalServerError, code: "HISTORY_WRITE_FAILED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newDatasetsHandler(t, Dependencies{Pipeline: &fakeResponder{}, Conversations: tc.store})
			rr := postMessage(h, "u1", "c1", `{"message":"how many deals?"}`)
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			if body := decodeError(t, rr); body["error_code"] != tc.code {
				t.Fatalf("body = %#v", body)
			}
		})
	}
}

func TestPostMessageCancelledRequest(t *testing.T) {
	responder := &fakeResponder{respond: func(conversation.Utterance) (chat.Response, error) {
		return chat.Response{}, context.Canceled
	}}
	store := conversation.NewMemoryStore()
	h := newDatasetsHandler(t, Dependencies{Pipeline: responder, Conversations: store})

	rr := postMessage(h, "u1", "c1", `{"message":"how many deals?"}`)
	if rr.Code != http.StatusRequestTimeout {
		t.Fatalf("status = %d", rr.Code)
	}
	history, err := store.Load(context.Background(), "u1", "c1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if history.Len() != 0 {
		t.Fatalf("aborted turn was recorded: %#v", history.Turns())
	}
}
