package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/duckmesh/tabletalk/internal/chat"
	"github.com/duckmesh/tabletalk/internal/conversation"
)

const maxMessageBytes = 16 << 10

type postMessageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	ConversationID string `json:"conversation_id"`
	chat.Response
	Retryable bool `json:"retryable"`
}

func handlePostMessage(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil || deps.Conversations == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "PIPELINE_UNAVAILABLE", "query pipeline is not configured", false, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "USER_REQUIRED", err.Error(), false, nil)
		return
	}
	conversationID := strings.TrimSpace(r.PathValue("conversation"))
	if conversationID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "conversation id is required", false, nil)
		return
	}

	var req postMessageRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, nil)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "message is required", false, nil)
		return
	}

	release, err := deps.Gate.Acquire(userID + "/" + conversationID)
	if errors.Is(err, conversation.ErrBusy) {
		writeError(r.Context(), w, http.StatusConflict, "CONVERSATION_BUSY", "another message in this conversation is still being answered", true, map[string]any{"conversation_id": conversationID})
		return
	}
	defer release()

	history, err := deps.Conversations.Load(r.Context(), userID, conversationID)
	if err != nil {
		logError(deps, r, "conversation load failed", err)
		writeError(r.Context(), w, http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "conversation history is unavailable", true, nil)
		return
	}

	resp, err := deps.Pipeline.Respond(r.Context(), userID, conversation.Utterance{Text: req.Message, History: history})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(r.Context(), w, status, "REQUEST_ABORTED", err.Error(), true, nil)
		return
	}

	if err := deps.Conversations.Append(r.Context(), userID, conversationID, resp.Turn); err != nil {
		logError(deps, r, "conversation append failed", err)
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_WRITE_FAILED", "answer could not be recorded", true, nil)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		ConversationID: conversationID,
		Response:       resp,
		Retryable:      resp.Outcome.Retryable(),
	})
}

func handleGetConversation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Conversations == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "conversation history is not configured", false, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "USER_REQUIRED", err.Error(), false, nil)
		return
	}
	conversationID := strings.TrimSpace(r.PathValue("conversation"))
	history, err := deps.Conversations.Load(r.Context(), userID, conversationID)
	if err != nil {
		logError(deps, r, "conversation load failed", err)
		writeError(r.Context(), w, http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "conversation history is unavailable", true, nil)
		return
	}
	turns := history.Turns()
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"turns":           turns,
		"turn_count":      len(turns),
	})
}

func logError(deps Dependencies, r *http.Request, message string, err error) {
	if deps.Logger == nil {
		return
	}
	deps.Logger.ErrorContext(r.Context(), message,
		slog.String("error", err.Error()),
		slog.String("path", r.URL.Path),
	)
}
