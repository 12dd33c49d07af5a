package rediskey

import "fmt"

// Key namespaces (global convention across services)
const (
	SequencePrefix = "seq"
	SessionPrefix  = "session:chat"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSequenceKey returns "seq:{name}"
func BuildSequenceKey(name string) string {
	return NamespaceKey(SequencePrefix, name)
}

// BuildSessionKey returns "session:chat:{chatID}"
func BuildSessionKey(chatID string) string {
	return NamespaceKey(SessionPrefix, chatID)
}
