package devserver

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	apiv1 "arcsync/shared/contracts/api/v1"
	rtv1 "arcsync/shared/contracts/realtime/v1"
)

const maxMessageChars = 4000

type conversation struct {
	id       string
	title    string
	members  []string
	lastRead map[string]int64
}

func (c *conversation) isMember(userID string) bool {
	for _, m := range c.members {
		if m == userID {
			return true
		}
	}
	return false
}

// AddConversation creates a conversation between members.
func (s *Server) AddConversation(id, title string, members ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[id] = &conversation{
		id:       id,
		title:    title,
		members:  append([]string(nil), members...),
		lastRead: make(map[string]int64),
	}
}

// Post appends a message as senderID without going through HTTP.
func (s *Server) Post(convID, senderID, content string) (StoredMessage, error) {
	res, err := s.store.Append(context.Background(), AppendInput{
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		Now:            s.now(),
	})
	if err != nil {
		return StoredMessage{}, err
	}
	s.announce(convID, res.Stored)
	return res.Stored, nil
}

// member returns the conversation when userID belongs to it.
func (s *Server) member(w http.ResponseWriter, r *http.Request) (*conversation, principal, bool) {
	p := principalFrom(r.Context())
	s.mu.Lock()
	c := s.convs[r.PathValue("id")]
	s.mu.Unlock()
	if c == nil || !c.isMember(p.userID) {
		writeError(w, http.StatusNotFound, apiv1.CodeNotFound, "conversation not found")
		return nil, p, false
	}
	return c, p, true
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	offset := 0
	if raw := r.URL.Query().Get(apiv1.CursorParam); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, apiv1.CodeValidation, "invalid cursor",
				apiv1.FieldError{Path: apiv1.CursorParam, Message: "must be a non-negative integer"})
			return
		}
		offset = n
	}

	s.mu.Lock()
	var mine []*conversation
	for _, c := range s.convs {
		if c.isMember(p.userID) {
			mine = append(mine, c)
		}
	}
	views := make([]apiv1.Conversation, 0, len(mine))
	for _, c := range mine {
		views = append(views, s.viewLocked(c, p.userID))
	}
	s.mu.Unlock()

	sort.Slice(views, func(i, j int) bool {
		if !views[i].LastMessageAt.Equal(views[j].LastMessageAt) {
			return views[i].LastMessageAt.After(views[j].LastMessageAt)
		}
		return views[i].ID < views[j].ID
	})

	page := apiv1.Page[apiv1.Conversation]{Items: []apiv1.Conversation{}}
	if offset < len(views) {
		end := min(offset+s.cfg.PageSize, len(views))
		page.Items = views[offset:end]
		if end < len(views) {
			page.NextCursor = strconv.Itoa(end)
		}
	}
	writeOK(w, http.StatusOK, page)
}

// viewLocked renders c for userID. s.mu must be held.
func (s *Server) viewLocked(c *conversation, userID string) apiv1.Conversation {
	v := apiv1.Conversation{ID: c.id, Title: c.title, LastReadSequence: c.lastRead[userID]}
	if last, ok := s.store.Latest(c.id); ok {
		v.LastMessagePreview = preview(last.Content)
		v.LastMessageAt = last.CreatedAt
		v.LastSequence = last.Seq
	}
	v.UnreadCount = s.store.Unread(c.id, userID, v.LastReadSequence)
	return v
}

func preview(content string) string {
	const maxRunes = 80
	r := []rune(content)
	if len(r) <= maxRunes {
		return content
	}
	return string(r[:maxRunes]) + "…"
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	c, _, ok := s.member(w, r)
	if !ok {
		return
	}
	var before *int64
	if raw := r.URL.Query().Get(apiv1.CursorParam); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, apiv1.CodeValidation, "invalid cursor",
				apiv1.FieldError{Path: apiv1.CursorParam, Message: "must be a positive sequence"})
			return
		}
		before = &n
	}

	msgs, more, err := s.store.Before(r.Context(), c.id, before, s.cfg.PageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apiv1.CodeInternal, "history failed")
		return
	}
	page := apiv1.Page[apiv1.Message]{Items: make([]apiv1.Message, 0, len(msgs))}
	for _, m := range msgs {
		page.Items = append(page.Items, toMessage(m))
	}
	if more && len(msgs) > 0 {
		page.NextCursor = strconv.FormatInt(msgs[len(msgs)-1].Seq, 10)
	}
	writeOK(w, http.StatusOK, page)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	c, p, ok := s.member(w, r)
	if !ok {
		return
	}
	var req apiv1.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apiv1.CodeValidation, "invalid json")
		return
	}
	content := strings.TrimSpace(req.Content)
	var details []apiv1.FieldError
	switch {
	case content == "":
		details = append(details, apiv1.FieldError{Path: "content", Message: "required"})
	case len([]rune(content)) > maxMessageChars:
		details = append(details, apiv1.FieldError{Path: "content", Message: "too long"})
	}
	if strings.TrimSpace(req.ClientMsgID) == "" {
		details = append(details, apiv1.FieldError{Path: "client_msg_id", Message: "required"})
	}
	if len(details) > 0 {
		writeError(w, http.StatusUnprocessableEntity, apiv1.CodeValidation, "invalid message", details...)
		return
	}

	res, err := s.store.Append(r.Context(), AppendInput{
		ConversationID: c.id,
		ClientMsgID:    req.ClientMsgID,
		SenderID:       p.userID,
		Content:        content,
		Now:            s.now(),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, apiv1.CodeInternal, "append failed")
		return
	}

	s.mu.Lock()
	if res.Stored.Seq > c.lastRead[p.userID] {
		c.lastRead[p.userID] = res.Stored.Seq
	}
	s.mu.Unlock()

	status := http.StatusCreated
	if res.Duplicated {
		status = http.StatusOK
	} else {
		s.announce(c.id, res.Stored)
	}
	writeOK(w, status, toMessage(res.Stored))
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	c, p, ok := s.member(w, r)
	if !ok {
		return
	}
	var req apiv1.MarkReadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, apiv1.CodeValidation, "invalid json")
		return
	}
	var lastSeq int64
	if last, ok := s.store.Latest(c.id); ok {
		lastSeq = last.Seq
	}
	if req.LastReadSequence < 0 || req.LastReadSequence > lastSeq {
		writeError(w, http.StatusUnprocessableEntity, apiv1.CodeValidation, "invalid read marker",
			apiv1.FieldError{Path: "last_read_sequence", Message: "must be within [0, last_sequence]"})
		return
	}

	s.mu.Lock()
	if req.LastReadSequence > c.lastRead[p.userID] {
		c.lastRead[p.userID] = req.LastReadSequence
	}
	stored := c.lastRead[p.userID]
	members := append([]string(nil), c.members...)
	s.mu.Unlock()

	env, err := rtv1.New(rtv1.TypeConversationRead, c.id, s.now(), rtv1.ConversationReadPayload{
		ConversationID:   c.id,
		UserID:           p.userID,
		LastReadSequence: stored,
	})
	if err == nil {
		s.hub.Publish(members, env)
	}

	writeOK(w, http.StatusOK, apiv1.MarkReadResponse{
		ConversationID:   c.id,
		LastReadSequence: stored,
		UnreadCount:      s.store.Unread(c.id, p.userID, stored),
	})
}

func (s *Server) announce(convID string, m StoredMessage) {
	s.mu.Lock()
	c := s.convs[convID]
	var members []string
	if c != nil {
		members = append(members, c.members...)
	}
	s.mu.Unlock()

	env, err := rtv1.New(rtv1.TypeMessageNew, convID, m.CreatedAt, rtv1.MessageNewPayload{
		ConversationID: convID,
		ClientMsgID:    m.ClientMsgID,
		ServerMsgID:    m.ID,
		Seq:            m.Seq,
		Sender:         m.SenderID,
		Text:           m.Content,
		ServerTS:       m.CreatedAt,
	})
	if err != nil {
		s.log.Error("devserver.ws.encode_failed", "err", err)
		return
	}
	s.hub.Publish(members, env)
}

func toMessage(m StoredMessage) apiv1.Message {
	return apiv1.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		ClientMsgID:    m.ClientMsgID,
		Sequence:       m.Seq,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt.UTC().Truncate(time.Microsecond),
	}
}
