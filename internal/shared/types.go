package shared

// shared types across the application
// tiers and message roles are read by the HTTP API, the worker and the ops CLI

type Tier string

const (
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
)

// Valid reports whether t is a known subscription tier.
func (t Tier) Valid() bool {
	return t == TierBasic || t == TierPro
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type MessageStatus string

const (
	StatusComplete MessageStatus = "complete"
	StatusFailed   MessageStatus = "failed"
)

// FailedReplyContent is stored as the content of the assistant message written
// when generation gives up for a user message.
const FailedReplyContent = "Sorry, I could not generate a response to this message. Please try again."

type AuthClaims struct {
	UserID int64  `json:"user_id"`
	Mobile string `json:"mobile"`
}
