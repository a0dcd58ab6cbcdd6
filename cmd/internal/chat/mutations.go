package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"arcsync/cmd/internal/gateway"
	"arcsync/cmd/internal/ids"
	"arcsync/cmd/internal/mutation"
	"arcsync/cmd/internal/querycache"
	apiv1 "arcsync/shared/contracts/api/v1"
)

// SendHooks observe one SendMessage call.
type SendHooks struct {
	// Optimistic receives the placeholder as it is published.
	Optimistic func(apiv1.Message)
	RolledBack func(apiv1.Message, error)
}

type sendVars struct {
	convID      string
	content     string
	clientMsgID string
	placeholder apiv1.Message
}

// SendMessage posts content to a conversation. A pending placeholder with a
// temporary id is placed at the head of the first messages page while the
// call runs and removed again if it fails. On settle the messages and the
// conversations list are invalidated.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string, hooks ...SendHooks) (apiv1.Message, error) {
	if err := checkConfirmed(conversationID); err != nil {
		return apiv1.Message{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return apiv1.Message{}, ErrEmptyMessage
	}

	now := c.now().UTC()
	tmpID, err := ids.NewTemporaryID(now)
	if err != nil {
		return apiv1.Message{}, fmt.Errorf("chat: temporary id: %w", err)
	}
	vars := sendVars{
		convID:      conversationID,
		content:     content,
		clientMsgID: newClientMsgID(),
	}
	vars.placeholder = apiv1.Message{
		ID:             tmpID,
		ConversationID: conversationID,
		ClientMsgID:    vars.clientMsgID,
		Content:        content,
		CreatedAt:      now,
		Pending:        true,
	}

	var h SendHooks
	if len(hooks) > 0 {
		h = hooks[0]
	}

	m := mutation.New(c.cache, mutation.Options[sendVars, apiv1.Message]{
		Name:    "send_message",
		Key:     MessagesKey(conversationID),
		Related: []querycache.Key{ConversationsKey()},
		Mutate: func(ctx context.Context, v sendVars) (apiv1.Message, error) {
			return gateway.Do[apiv1.Message](ctx, c.gw, gateway.Request{
				Method:        http.MethodPost,
				Path:          apiv1.MessagesPath(v.convID),
				Body:          apiv1.SendMessageRequest{Content: v.content, ClientMsgID: v.clientMsgID},
				Authenticated: true,
			})
		},
		Optimistic: func(d querycache.Data, v sendVars) (querycache.Data, error) {
			return mutation.PrependToFirstPage(d, v.placeholder)
		},
		OnOptimisticApply: func(v sendVars, _ querycache.Data) {
			if h.Optimistic != nil {
				h.Optimistic(v.placeholder)
			}
		},
		OnRollback: func(v sendVars, err error) {
			if at, ok := ids.TemporaryTime(v.placeholder.ID); ok {
				c.log.Info("chat.send.rolled_back", "conversation_id", v.convID, "pending_for", c.now().Sub(at), "err", err)
			}
			if h.RolledBack != nil {
				h.RolledBack(v.placeholder, err)
			}
		},
	}, mutation.WithLogger(c.log), mutation.WithMetrics(c.metrics))

	msg, err := m.Mutate(ctx, vars)
	if err != nil {
		return apiv1.Message{}, fmt.Errorf("chat: send: %w", err)
	}
	c.log.Debug("chat.message.sent", "conversation_id", conversationID, "sequence", msg.Sequence)
	return msg, nil
}

// MarkRead advances the caller's read marker. The conversation's unread
// counter in the first page of the list drops to zero at once; on failure
// the previous list is restored.
func (c *Client) MarkRead(ctx context.Context, conversationID string, lastReadSequence int64) (apiv1.MarkReadResponse, error) {
	if err := checkConfirmed(conversationID); err != nil {
		return apiv1.MarkReadResponse{}, err
	}

	m := mutation.New(c.cache, mutation.Options[int64, apiv1.MarkReadResponse]{
		Name:    "mark_read",
		Key:     ConversationsKey(),
		Related: []querycache.Key{MessagesKey(conversationID)},
		Mutate: func(ctx context.Context, seq int64) (apiv1.MarkReadResponse, error) {
			return gateway.Do[apiv1.MarkReadResponse](ctx, c.gw, gateway.Request{
				Method:        http.MethodPost,
				Path:          apiv1.ReadPath(conversationID),
				Body:          apiv1.MarkReadRequest{LastReadSequence: seq},
				Authenticated: true,
			})
		},
		Optimistic: func(d querycache.Data, seq int64) (querycache.Data, error) {
			return mutation.UpdateFirstPageItems(d, func(conv apiv1.Conversation) (apiv1.Conversation, bool) {
				if conv.ID != conversationID {
					return conv, false
				}
				conv.UnreadCount = 0
				conv.LastReadSequence = max(conv.LastReadSequence, seq)
				return conv, true
			})
		},
	}, mutation.WithLogger(c.log), mutation.WithMetrics(c.metrics))

	res, err := m.Mutate(ctx, lastReadSequence)
	if err != nil {
		return apiv1.MarkReadResponse{}, fmt.Errorf("chat: mark read: %w", err)
	}
	return res, nil
}
