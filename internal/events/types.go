// Package events defines the event topics published by the orchestration core.
package events

// Topics. Subscribers observe core state exclusively through these subjects;
// no component emits a completion before the corresponding database write is
// durable.
const (
	// TopicTask carries newly enqueued or re-queued tasks.
	TopicTask = "task"
	// TopicDelegation carries task-accepted-by-agent notifications.
	TopicDelegation = "delegation"
	// TopicCompletion carries terminal state transitions.
	TopicCompletion = "completion"
	// TopicActivity carries human-readable log entries, mirrored durably
	// into the logs table before publication.
	TopicActivity = "activity"
	// TopicEviction carries queued agent evictions.
	TopicEviction = "eviction"
)

// Topics lists every topic a subscriber may ask for.
var Topics = []string{TopicTask, TopicDelegation, TopicCompletion, TopicActivity, TopicEviction}

// Valid reports whether name is a known topic.
func Valid(name string) bool {
	for _, t := range Topics {
		if t == name {
			return true
		}
	}
	return false
}
