package chat

import (
	"arcsync/cmd/internal/querycache"
	apiv1 "arcsync/shared/contracts/api/v1"
)

// ConversationsKey is the query key of the conversations list.
func ConversationsKey() querycache.Key {
	return querycache.NewKey(apiv1.PathConversations, nil)
}

// MessagesKey is the query key of one conversation's messages.
func MessagesKey(conversationID string) querycache.Key {
	return querycache.NewKey(apiv1.MessagesPath(conversationID), nil)
}
