package mqtt

import (
	"fmt"
	"strings"
)

// TopicRoot is the first level of every catalogdb topic.
const TopicRoot = "catalogdb"

// Topics builds the topics for one instance.
//
//	topics := mqtt.Topics{Instance: "site-a"}
//	topics.Query()  // "catalogdb/site-a/query"
//	topics.Status() // "catalogdb/site-a/status"
type Topics struct {
	Instance string
}

// Query returns the topic query events are published on.
func (t Topics) Query() string {
	return fmt.Sprintf("%s/%s/query", TopicRoot, t.Instance)
}

// Status returns the retained online/offline topic, also used for the LWT.
func (t Topics) Status() string {
	return fmt.Sprintf("%s/%s/status", TopicRoot, t.Instance)
}

// AllQueries matches query events from every instance.
//
// Pattern: catalogdb/+/query
func (Topics) AllQueries() string {
	return TopicRoot + "/+/query"
}

// AllStatus matches status messages from every instance.
//
// Pattern: catalogdb/+/status
func (Topics) AllStatus() string {
	return TopicRoot + "/+/status"
}

// InstanceOf extracts the instance level from a catalogdb topic.
// It returns "" for topics outside the catalogdb tree.
func InstanceOf(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != TopicRoot {
		return ""
	}
	return parts[1]
}
