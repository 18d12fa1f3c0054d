package gateway

import (
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"campus-chat/auth"
	"campus-chat/contract"
	"campus-chat/errors"
	"campus-chat/repositories"
	"campus-chat/services"
)

// Handler is the REST and websocket surface of the engine. Identity is
// taken from the request context, never from the request body.
type Handler struct {
	membership    services.IMembershipService
	chat          services.IChatService
	notifications services.INotificationService
	users         repositories.IUserDirectory
	registry      contract.IRegistry
	log           *slog.Logger
	validate      *validator.Validate

	allowedOrigins []string
	sinkBufferSize int
	storageRetries int
}

func NewHandler(membership services.IMembershipService, chat services.IChatService,
	notifications services.INotificationService, users repositories.IUserDirectory,
	registry contract.IRegistry, allowedOrigins []string, sinkBufferSize int,
	storageRetries int, log *slog.Logger) *Handler {
	// Zero retries would skip the store attempt entirely and swallow the
	// frame; every send gets at least one attempt.
	if storageRetries < 1 {
		storageRetries = 1
	}
	return &Handler{
		membership:     membership,
		chat:           chat,
		notifications:  notifications,
		users:          users,
		registry:       registry,
		log:            log,
		validate:       validator.New(),
		allowedOrigins: allowedOrigins,
		sinkBufferSize: sinkBufferSize,
		storageRetries: storageRetries,
	}
}

func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/groups", h.CreateGroup).Methods(http.MethodPost)
	r.HandleFunc("/groups", h.ListMyGroups).Methods(http.MethodGet)
	r.HandleFunc("/groups/all", h.ListAllGroups).Methods(http.MethodGet)
	r.HandleFunc("/groups/{id}", h.GetGroup).Methods(http.MethodGet)
	r.HandleFunc("/groups/{id}", h.UpdateGroup).Methods(http.MethodPut)
	r.HandleFunc("/groups/{id}", h.DeleteGroup).Methods(http.MethodDelete)
	r.HandleFunc("/groups/{id}/members", h.AddMember).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/members/{username}", h.RemoveMember).Methods(http.MethodDelete)
	r.HandleFunc("/groups/{id}/leave", h.LeaveGroup).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/messages", h.ListGroupMessages).Methods(http.MethodGet)
	r.HandleFunc("/groups/{id}/messages", h.SendGroupMessage).Methods(http.MethodPost)

	r.HandleFunc("/direct/{username}", h.ListDirectMessages).Methods(http.MethodGet)
	r.HandleFunc("/direct/{username}", h.SendDirectMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/read", h.MarkMessageRead).Methods(http.MethodPost)
	r.HandleFunc("/chats", h.ChatHistory).Methods(http.MethodGet)

	r.HandleFunc("/notifications", h.ListNotifications).Methods(http.MethodGet)
	r.HandleFunc("/notifications", h.ClearNotifications).Methods(http.MethodDelete)
	r.HandleFunc("/notifications/read", h.MarkAllNotificationsRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/{id}/read", h.MarkNotificationRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/{id}", h.DeleteNotification).Methods(http.MethodDelete)

	r.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)
	r.HandleFunc("/users/{username}", h.GetUser).Methods(http.MethodGet)

	r.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)

	return r
}

type createGroupRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	var body createGroupRequest
	if !h.decode(w, r, &body) {
		return
	}
	group, err := h.membership.CreateGroup(username, body.Name, body.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, group)
}

func (h *Handler) ListMyGroups(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	groups, err := h.membership.ListGroupsFor(username)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, groups)
}

func (h *Handler) ListAllGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.membership.ListAllGroups()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, groups)
}

func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	group, err := h.membership.GetGroup(groupID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, group)
}

type updateGroupRequest struct {
	Name        string `json:"name" validate:"max=100"`
	Description string `json:"description" validate:"max=500"`
	Avatar      string `json:"avatar" validate:"max=500"`
}

func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	groupID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var body updateGroupRequest
	if !h.decode(w, r, &body) {
		return
	}
	group, err := h.membership.UpdateGroup(groupID, username, body.Name, body.Description, body.Avatar)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, group)
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	groupID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.membership.DeleteGroup(groupID, username); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type memberRequest struct {
	Username string `json:"username" validate:"required,max=100"`
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	groupID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var body memberRequest
	if !h.decode(w, r, &body) {
		return
	}
	group, err := h.membership.AddMember(groupID, username, body.Username)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, group)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	groupID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	group, err := h.membership.RemoveMember(groupID, username, mux.Vars(r)["username"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, group)
}

func (h *Handler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	groupID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.membership.LeaveGroup(groupID, username); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListGroupMessages(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	groupID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	messages, err := h.chat.ListGroupMessages(groupID, username)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

func (h *Handler) SendGroupMessage(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	groupID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var body sendMessageRequest
	if !h.decode(w, r, &body) {
		return
	}
	msg, err := h.chat.SendGroupMessage(groupID, username, body.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) ListDirectMessages(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	messages, err := h.chat.ListDirectMessages(username, mux.Vars(r)["username"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) SendDirectMessage(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	var body sendMessageRequest
	if !h.decode(w, r, &body) {
		return
	}
	msg, err := h.chat.SendDirectMessage(username, mux.Vars(r)["username"], body.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	messageID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.chat.MarkRead(messageID, username); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	history, err := h.chat.ChatHistory(username)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	notifications, err := h.notifications.List(username)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, notifications)
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(username, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	if err := h.notifications.MarkAllRead(username); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.notifications.Delete(username, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	username, ok := h.identity(w, r)
	if !ok {
		return
	}
	if err := h.notifications.ClearAll(username); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListAll()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(mux.Vars(r)["username"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	username, ok := auth.Identity(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
	}
	return username, ok
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "malformed id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// decode parses and validates a JSON body, answering 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, body any) bool {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Could not encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFromError(err))
}

// statusFromError translates domain sentinels to HTTP statuses. Unknown
// errors surface as 500 rather than leaking storage details in a status.
func statusFromError(err error) int {
	switch {
	case goerrors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case goerrors.Is(err, errors.ErrUnauthorized):
		return http.StatusForbidden
	case goerrors.Is(err, errors.ErrValidation):
		return http.StatusBadRequest
	case goerrors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	case goerrors.Is(err, errors.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
