package botkeys

import "testing"

func TestKeyShapes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"user", UserKey(7, 42, "points"), "user_7_42_points"},
		{"chat", ChatKey(42, "topic"), "chat_42_topic"},
		{"message", MessageKey(9, 42, "pin"), "message_9_42_pin"},
		{"cooldown", CooldownKey(7, 42, "roll"), "cooldown_7_42_roll"},
		{"negative id", ChatKey(-100123, "title"), "chat_-100123_title"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestHasKind(t *testing.T) {
	t.Parallel()
	if !HasKind("user_7_42_points", "user") {
		t.Fatal("user key not recognized")
	}
	if HasKind("cooldown_7_42_roll", "user") {
		t.Fatal("kind tag confused")
	}
}

func TestFormatLeaderboard(t *testing.T) {
	t.Parallel()
	entries := []Entry{
		{Name: "ada", Score: 3},
		{Name: "bob", Score: 10},
		{Name: "cyd", Score: 7.5},
	}
	got := FormatLeaderboard(entries, 2)
	want := "1. bob: 10\n2. cyd: 7.5"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if FormatLeaderboard(nil, 5) != "" {
		t.Fatal("empty board must render empty")
	}
}
