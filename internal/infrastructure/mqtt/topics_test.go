package mqtt

import "testing"

func TestTopics(t *testing.T) {
	topics := Topics{Instance: "site-a"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"query", topics.Query(), "catalogdb/site-a/query"},
		{"status", topics.Status(), "catalogdb/site-a/status"},
		{"all queries", topics.AllQueries(), "catalogdb/+/query"},
		{"all status", Topics{}.AllStatus(), "catalogdb/+/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestInstanceOf(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"catalogdb/site-a/query", "site-a"},
		{"catalogdb/site-b/status", "site-b"},
		{"catalogdb/site-a", ""},
		{"other/site-a/query", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := InstanceOf(tt.topic); got != tt.want {
			t.Errorf("InstanceOf(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}
