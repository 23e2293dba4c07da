package server

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"strconv"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"private-messenger/internal/relay"
	"private-messenger/internal/storage"
)

// TODO limit reading from body

type parsers struct {
	createUserPool fastjson.ParserPool
	listUsersPool  fastjson.ParserPool
	accessChatPool fastjson.ParserPool
	listChatsPool  fastjson.ParserPool
	messagesPool   fastjson.ParserPool
	deleteChatPool fastjson.ParserPool
}

type handler struct {
	logger  *zap.SugaredLogger
	store   *storage.Store
	hub     *relay.Hub
	parsers parsers
}

// idField pulls a positive 64-bit integer field from a parsed body.
// The second return value is a client-facing error message, empty on success.
func idField(v *fastjson.Value, name string) (int64, string) {
	if !v.Exists(name) {
		return 0, "Missing Field \"" + name + "\""
	}

	id, err := v.Get(name).Int64()
	if err != nil {
		return 0, "Field \"" + name + "\" must be a 64-bit integer value"
	}

	if id < 1 {
		return 0, "Field \"" + name + "\" must be a valid id greater than zero"
	}

	return id, ""
}

// stringField pulls a non-empty string field from a parsed body.
// The second return value is a client-facing error message, empty on success.
func stringField(v *fastjson.Value, name string) (string, string) {
	if !v.Exists(name) {
		return "", "Missing Field \"" + name + "\""
	}

	field := v.Get(name)
	if field.Type() != fastjson.TypeString {
		return "", "Field \"" + name + "\" must be a string"
	}

	s := string(field.GetStringBytes())
	if len(s) == 0 {
		return "", "Field \"" + name + "\" must have non-zero length"
	}

	return s, ""
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

func (h *handler) marshalJSON(w http.ResponseWriter, status int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, status, payload)
}

// createUser handles HTTP requests on "/users/add" endpoint
func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.createUserPool.Get()
	defer h.parsers.createUserPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	name, msg := stringField(v, "name")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	email, msg := stringField(v, "email")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	id, err := h.store.CreateUser(r.Context(), name, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			http.Error(w, "User already exists", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, []byte(`{"id":`+strconv.FormatInt(id, 10)+`}`))
}

// listUsers handles HTTP requests on "/users/get" endpoint, returning every
// user except the requester — the contact list a conversation starts from
func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.listUsersPool.Get()
	defer h.parsers.listUsersPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	user, msg := idField(v, "user")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	users, err := h.store.UsersExcept(r.Context(), user)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.marshalJSON(w, http.StatusOK, users)
}

// accessChat handles HTTP requests on "/chats/access" endpoint: it returns
// the chat between the requester and the peer, creating it on first contact
func (h *handler) accessChat(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.accessChatPool.Get()
	defer h.parsers.accessChatPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	user, msg := idField(v, "user")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	peer, msg := idField(v, "peer")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	chat, err := h.store.AccessChat(r.Context(), user, peer)
	if err != nil {
		switch err {
		case storage.ErrSameParticipant:
			http.Error(w, "Cannot open a chat with yourself", http.StatusBadRequest)
			return
		case storage.ErrUserNotExist:
			http.Error(w, "User not found", http.StatusNotFound)
			return
		default:
			h.logger.Error(err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}

	h.marshalJSON(w, http.StatusOK, chat)
}

// listChats handles HTTP requests on "/chats/get" endpoint
func (h *handler) listChats(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.listChatsPool.Get()
	defer h.parsers.listChatsPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	user, msg := idField(v, "user")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	chats, err := h.store.ChatsByUserID(r.Context(), user)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.marshalJSON(w, http.StatusOK, chats)
}

// listMessages handles HTTP requests on "/messages/get" endpoint, returning
// chat history ordered by creation time ascending
func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.messagesPool.Get()
	defer h.parsers.messagesPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	chat, msg := idField(v, "chat")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	messages, err := h.store.MessagesByChatID(r.Context(), chat)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.marshalJSON(w, http.StatusOK, messages)
}

// deleteChat handles HTTP requests on "/chats/delete" endpoint. Only a
// current participant may delete a chat; deletion removes all its messages
// and then the chat record.
func (h *handler) deleteChat(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)

	parser := h.parsers.deleteChatPool.Get()
	defer h.parsers.deleteChatPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	chatID, msg := idField(v, "chat")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	user, msg := idField(v, "user")
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	chat, err := h.store.ChatByID(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, storage.ErrChatNotExist) {
			http.Error(w, "Chat not found", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if !chat.HasParticipant(user) {
		http.Error(w, "You are not allowed to delete this chat", http.StatusForbidden)
		return
	}

	if err := h.store.DeleteChatCascade(r.Context(), chatID); err != nil {
		if errors.Is(err, storage.ErrChatNotExist) {
			http.Error(w, "Chat not found", http.StatusNotFound)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, []byte(`{"message":"chat deleted"}`))
}
