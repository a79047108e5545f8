// Package botkeys builds the composite record keys the bot layers use
// to namespace variables per user, chat, message or cooldown, plus the
// small leaderboard formatting helper layered on FindMany results.
//
// Keys follow the historical string-join convention
// "<kind>_<ids...>_<variable>". The convention has a known weakness:
// nothing escapes the separator, so identifiers whose decimal form
// lines up with an adjacent "_" can collide. Kept as-is for
// compatibility with existing stored data.
package botkeys

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func UserKey(userID, chatID int64, variable string) string {
	return join("user", strconv.FormatInt(userID, 10), strconv.FormatInt(chatID, 10), variable)
}

func ChatKey(chatID int64, variable string) string {
	return join("chat", strconv.FormatInt(chatID, 10), variable)
}

func MessageKey(messageID, chatID int64, variable string) string {
	return join("message", strconv.FormatInt(messageID, 10), strconv.FormatInt(chatID, 10), variable)
}

func CooldownKey(userID, chatID int64, command string) string {
	return join("cooldown", strconv.FormatInt(userID, 10), strconv.FormatInt(chatID, 10), command)
}

func join(parts ...string) string { return strings.Join(parts, "_") }

// HasKind reports whether key carries the given kind tag.
func HasKind(key, kind string) bool {
	return strings.HasPrefix(key, kind+"_")
}

// Entry is one leaderboard row.
type Entry struct {
	Name  string
	Score float64
}

// FormatLeaderboard renders entries sorted by score descending, one
// "<rank>. <name>: <score>" line each, at most limit lines.
func FormatLeaderboard(entries []Entry, limit int) string {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	var b strings.Builder
	for i, e := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s: %s", i+1, e.Name, strconv.FormatFloat(e.Score, 'f', -1, 64))
	}
	return b.String()
}
