package model

import "time"

// Message 私信；除 Read 外不可变
type Message struct {
	ID        string    `json:"id"`
	FromID    string    `json:"fromId"`
	ToID      string    `json:"toId"`
	Text      string    `json:"text"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Counterpart 站在 userID 视角的对方
func (m *Message) Counterpart(userID string) string {
	if m.FromID == userID {
		return m.ToID
	}
	return m.FromID
}

// Between 判断消息是否属于 a 与 b 之间（任一方向）
func (m *Message) Between(a, b string) bool {
	return (m.FromID == a && m.ToID == b) || (m.FromID == b && m.ToID == a)
}

// Conversation 会话视图，不落库
type Conversation struct {
	CounterpartID   string   `json:"counterpartId"`
	CounterpartName string   `json:"counterpartName"`
	LastMessage     *Message `json:"lastMessage"`
	UnreadCount     int      `json:"unreadCount"`
	MessageCount    int      `json:"messageCount"`
}
