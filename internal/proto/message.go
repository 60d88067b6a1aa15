package proto

type MessageRole string

const (
	Assistant MessageRole = "assistant"
	User      MessageRole = "user"
)

func (r MessageRole) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

func (r *MessageRole) UnmarshalText(data []byte) error {
	*r = MessageRole(data)
	return nil
}

// ConversationMessage is one turn of a cross-engine conversation.
type ConversationMessage struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Engine    string      `json:"engine"`
	Timestamp int64       `json:"timestamp"`
}

// Conversation is a logical thread that may span sessions on several engines.
type Conversation struct {
	ID         string                `json:"id"`
	Messages   []ConversationMessage `json:"messages"`
	LastEngine string                `json:"last_engine"`
	Engines    []string              `json:"engines"`
	StartTime  int64                 `json:"start_time"`
}
