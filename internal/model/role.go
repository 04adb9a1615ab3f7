package model

type MessageRole string

const (
	MessageRoleSystem    = MessageRole("system")
	MessageRoleUser      = MessageRole("user")
	MessageRoleAssistant = MessageRole("assistant")
	MessageRoleTool      = MessageRole("tool")
)

func ParseMessageRole(s string) (MessageRole, bool) {
	switch MessageRole(s) {
	case MessageRoleSystem, MessageRoleUser, MessageRoleAssistant, MessageRoleTool:
		return MessageRole(s), true
	default:
		return "", false
	}
}
