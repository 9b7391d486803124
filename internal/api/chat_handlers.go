package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/opsdash/internal/chat"
	"github.com/hyperengineering/opsdash/internal/command"
	"github.com/hyperengineering/opsdash/internal/validation"
)

// MaxChatMessages bounds the conversation forwarded to the provider.
const MaxChatMessages = 50

type chatRequest struct {
	Messages []chat.Message `json:"messages"`
}

type chatResponse struct {
	Role    string          `json:"role"`
	Content string          `json:"content"`
	Command *command.Result `json:"command,omitempty"`
	// CommandError explains why an emitted command was not applied.
	CommandError string `json:"commandError,omitempty"`
}

func validateChatRequest(req chatRequest) []validation.ValidationError {
	var v validation.Collector
	if len(req.Messages) == 0 {
		v.Add(&validation.ValidationError{Field: "messages", Message: "is required"})
	}
	if len(req.Messages) > MaxChatMessages {
		v.Add(&validation.ValidationError{Field: "messages", Message: "too many messages"})
	}
	for _, m := range req.Messages {
		v.Add(validation.ValidateEnum("messages.role", m.Role, chat.RoleUser, chat.RoleAssistant))
		v.Add(validation.ValidateRequired("messages.content", m.Content))
		v.Add(validation.ValidateText("messages.content", m.Content))
		v.Add(validation.ValidateMaxLength("messages.content", m.Content, validation.MaxTextLength))
	}
	return v.Errors()
}

// Chat handles POST /api/chat. The conversation is sent with a summary of
// the dashboard; a command block in the reply is applied and stripped.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.chat == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Chat assistant is not configured")
		return
	}

	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validateChatRequest(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Conversation contains invalid messages", errs)
		return
	}

	system := chat.SystemPrompt + "\n\nContexto atual:\n" + chat.BuildContext(ctx, h.store.Now(), h.store)

	reply, err := h.chat.Complete(ctx, system, req.Messages)
	if err != nil {
		slog.Warn("chat completion failed",
			"component", "api",
			"action", "chat_failed",
			"error", err,
		)
		MapChatError(w, r, err)
		return
	}

	resp := chatResponse{Role: chat.RoleAssistant}

	cmd, text, err := command.Parse(reply)
	resp.Content = text
	if err != nil {
		slog.Warn("assistant emitted a malformed command",
			"component", "api",
			"action", "command_malformed",
			"error", err,
		)
		resp.CommandError = "O comando do assistente não pôde ser lido."
		writeJSON(w, http.StatusOK, resp)
		return
	}

	result, err := h.executor.Execute(ctx, cmd)
	switch {
	case err == nil:
		resp.Command = result
	case errors.Is(err, command.ErrMetricNotFound):
		resp.CommandError = "Nenhuma métrica corresponde ao nome informado."
	default:
		var invalid *command.InvalidError
		if !errors.As(err, &invalid) {
			slog.Error("command execution failed", "component", "api", "action", "command_failed", "error", err)
		}
		resp.CommandError = "O comando do assistente tinha dados inválidos e não foi aplicado."
	}

	writeJSON(w, http.StatusOK, resp)
}

// ExecuteCommand handles POST /api/commands, applying one command directly.
func (h *Handler) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var cmd command.Command
	if !decodeJSON(w, r, &cmd) {
		return
	}
	if err := validation.ValidateRequired("action", cmd.Action); err != nil {
		WriteProblemWithErrors(w, r, "Command is missing its action", []validation.ValidationError{*err})
		return
	}

	result, err := h.executor.Execute(r.Context(), &cmd)
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	if result == nil {
		WriteProblem(w, r, http.StatusBadRequest, "Unknown action "+cmd.Action)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
