package v1

import "time"

// Routes.
const (
	PathLogin         = "/v1/auth/login"
	PathRefresh       = "/v1/auth/refresh"
	PathLogout        = "/v1/auth/logout"
	PathConversations = "/v1/conversations"
	PathRealtime      = "/v1/ws"
)

// CursorParam names the pagination query parameter.
const CursorParam = "cursor"

// MessagesPath returns the messages collection of a conversation.
func MessagesPath(conversationID string) string {
	return PathConversations + "/" + conversationID + "/messages"
}

// ReadPath returns the read-marker endpoint of a conversation.
func ReadPath(conversationID string) string {
	return PathConversations + "/" + conversationID + "/read"
}

// LoginRequest is the body of PathLogin.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body of PathRefresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by login and refresh. ExpiresIn is seconds.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Page is one window of a paginated collection. NextCursor is empty on the last page.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Conversation is an entry of the conversations list.
type Conversation struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastMessageAt      time.Time `json:"last_message_at,omitzero"`
	LastSequence       int64     `json:"last_sequence"`
	LastReadSequence   int64     `json:"last_read_sequence"`
	UnreadCount        int       `json:"unread_count"`
}

// Message is one entry of a conversation's message stream. Pages are newest first.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ClientMsgID    string    `json:"client_msg_id,omitempty"`
	Sequence       int64     `json:"sequence"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	// Pending marks an optimistic entry not yet confirmed by the server.
	Pending bool `json:"pending,omitempty"`
}

// SendMessageRequest is the body of MessagesPath POST.
type SendMessageRequest struct {
	Content     string `json:"content"`
	ClientMsgID string `json:"client_msg_id"`
}

// MarkReadRequest is the body of ReadPath POST.
type MarkReadRequest struct {
	LastReadSequence int64 `json:"last_read_sequence"`
}

// MarkReadResponse echoes the stored read marker.
type MarkReadResponse struct {
	ConversationID   string `json:"conversation_id"`
	LastReadSequence int64  `json:"last_read_sequence"`
	UnreadCount      int    `json:"unread_count"`
}
