package coord

import "strings"

// Key names used by every process in the fleet. They match the names used by
// earlier deployments so old and new processes can share one store.
const (
	subscribedGroupsKey = "subscribed-rooms"
	groupConnectionsKey = "room-connections"
	connectionKeyPrefix = "rooms:"
)

// Keys builds store keys and channel names under an optional prefix.
type Keys struct {
	prefix string
}

// NewKeys returns a key builder. An empty prefix yields the bare names.
func NewKeys(prefix string) Keys {
	return Keys{prefix: prefix}
}

// Prefix returns the configured prefix.
func (k Keys) Prefix() string {
	return k.prefix
}

// SubscribedGroups is the set of groups that some process is subscribed to.
func (k Keys) SubscribedGroups() string {
	return k.prefix + subscribedGroupsKey
}

// GroupConnections is the hash of fleet-wide connection counts per group.
func (k Keys) GroupConnections() string {
	return k.prefix + groupConnectionsKey
}

// ConnectionGroups is the set of groups joined by one connection.
func (k Keys) ConnectionGroups(connectionID string) string {
	return k.prefix + connectionKeyPrefix + connectionID
}

// Channel is the publish/subscribe channel that carries a group's messages.
func (k Keys) Channel(group string) string {
	return k.prefix + group
}

// GroupFromChannel reverses Channel. ok is false for channels outside the
// prefix.
func (k Keys) GroupFromChannel(channel string) (group string, ok bool) {
	if !strings.HasPrefix(channel, k.prefix) {
		return "", false
	}
	group = channel[len(k.prefix):]
	return group, group != ""
}
