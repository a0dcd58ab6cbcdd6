package devserver

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"arcsync/cmd/internal/ids"
)

const maxMessagesPerConversation = 10_000

// StoredMessage is the canonical server-side message.
type StoredMessage struct {
	ID             string
	ConversationID string
	ClientMsgID    string
	Seq            int64
	SenderID       string
	Content        string
	CreatedAt      time.Time
}

// AppendInput describes one append.
type AppendInput struct {
	ConversationID string
	ClientMsgID    string
	SenderID       string
	Content        string
	Now            time.Time
}

// AppendResult reports the stored message and whether it was a replay.
type AppendResult struct {
	Stored     StoredMessage
	Duplicated bool
}

// MessageStore keeps messages per conversation with a monotonic sequence
// and idempotency per (conversation, client_msg_id).
type MessageStore struct {
	mu    sync.Mutex
	convs map[string]*convLog
}

type convLog struct {
	seq    int64
	dedupe map[string]StoredMessage
	msgs   []StoredMessage // ascending seq
}

// NewMessageStore returns an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{convs: make(map[string]*convLog)}
}

// Append stores a message, or returns the earlier one for a repeated client_msg_id.
func (s *MessageStore) Append(ctx context.Context, in AppendInput) (AppendResult, error) {
	if in.ConversationID == "" || in.SenderID == "" {
		return AppendResult{}, errors.New("invalid input")
	}
	if err := ctx.Err(); err != nil {
		return AppendResult{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.convs[in.ConversationID]
	if c == nil {
		c = &convLog{dedupe: make(map[string]StoredMessage)}
		s.convs[in.ConversationID] = c
	}
	if in.ClientMsgID != "" {
		if existing, ok := c.dedupe[in.ClientMsgID]; ok {
			return AppendResult{Stored: existing, Duplicated: true}, nil
		}
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return AppendResult{}, err
	}
	c.seq++
	msg := StoredMessage{
		ID:             id,
		ConversationID: in.ConversationID,
		ClientMsgID:    in.ClientMsgID,
		Seq:            c.seq,
		SenderID:       in.SenderID,
		Content:        in.Content,
		CreatedAt:      now.UTC(),
	}
	if in.ClientMsgID != "" {
		c.dedupe[in.ClientMsgID] = msg
	}
	c.msgs = append(c.msgs, msg)
	if len(c.msgs) > maxMessagesPerConversation {
		c.msgs = c.msgs[len(c.msgs)-maxMessagesPerConversation:]
	}
	return AppendResult{Stored: msg}, nil
}

// Before returns up to limit messages with seq < before (all when before is
// nil), newest first, and whether older messages remain.
func (s *MessageStore) Before(ctx context.Context, convID string, before *int64, limit int) ([]StoredMessage, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	c := s.convs[convID]
	var snap []StoredMessage
	if c != nil {
		snap = append([]StoredMessage(nil), c.msgs...)
	}
	s.mu.Unlock()

	end := len(snap)
	if before != nil {
		end = sort.Search(len(snap), func(i int) bool { return snap[i].Seq >= *before })
	}
	start := max(end-limit, 0)

	out := make([]StoredMessage, 0, end-start)
	for i := end - 1; i >= start; i-- {
		out = append(out, snap[i])
	}
	return out, start > 0, nil
}

// Latest returns the newest message of convID.
func (s *MessageStore) Latest(convID string) (StoredMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convs[convID]
	if c == nil || len(c.msgs) == 0 {
		return StoredMessage{}, false
	}
	return c.msgs[len(c.msgs)-1], true
}

// Unread counts messages of convID after seq not sent by userID.
func (s *MessageStore) Unread(convID, userID string, after int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convs[convID]
	if c == nil {
		return 0
	}
	n := 0
	for i := len(c.msgs) - 1; i >= 0 && c.msgs[i].Seq > after; i-- {
		if c.msgs[i].SenderID != userID {
			n++
		}
	}
	return n
}
