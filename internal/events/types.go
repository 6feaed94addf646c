// Package events subscribes to the host event bus and reacts to chat
// lifecycle notifications: a changed chat resets and rebuilds its index, a
// received message may trigger the active visibility policy.
package events

// ChatChangedEvent signals that a chat's message sequence was structurally
// changed (loaded, edited, reordered) and its index is stale.
type ChatChangedEvent struct {
	ChatID string `json:"chat_id"`
}

// MessageReceivedEvent signals that a new message was appended to a chat.
type MessageReceivedEvent struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	Position  int    `json:"position"`
	System    bool   `json:"is_system"`
}
