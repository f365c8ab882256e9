package translate

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/olivermeyer777/post-translatorv1/internal/signaling"
)

const (
	// maxItems caps transcript history; oldest entries drop first.
	maxItems = 50

	// pauseThreshold is the silence gap after which a new bubble is
	// started for the same sender.
	pauseThreshold = 3 * time.Second
)

// Item is one transcript bubble: the original utterance and its
// translation, attributed to one sender.
type Item struct {
	ID          int64
	Sender      string
	Original    string
	Translation string
	Timestamp   time.Time
}

// Log is the bounded bilingual transcript shared by both parties.
// Events merge into the last bubble when they continue the same open
// turn: translation continuations always merge, original-text events
// merge within the pause threshold. Both local commits and remote
// TRANSCRIPT messages go through the same rule, so the two parties
// converge on the same record.
type Log struct {
	clk clock.Clock

	mu         sync.Mutex
	items      []Item
	lastUpdate time.Time
	nextID     int64
	onChange   func(Item)
}

// NewLog creates an empty log. Pass clock.New() outside of tests.
func NewLog(clk clock.Clock) *Log {
	return &Log{clk: clk, nextID: 1}
}

// OnChange sets a callback invoked with the appended or updated item.
func (l *Log) OnChange(fn func(Item)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// Add commits one transcript event from the given sender.
func (l *Log) Add(text string, sender signaling.Role, isTranslation bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	l.mu.Lock()
	now := l.clk.Now()
	label := sender.Label()

	merge := false
	if n := len(l.items); n > 0 && l.items[n-1].Sender == label {
		if isTranslation {
			merge = true
		} else if now.Sub(l.lastUpdate) < pauseThreshold {
			merge = true
		}
	}
	l.lastUpdate = now

	var changed Item
	if merge {
		last := &l.items[len(l.items)-1]
		if isTranslation {
			last.Translation = joinText(last.Translation, text)
		} else {
			last.Original = joinText(last.Original, text)
		}
		changed = *last
	} else {
		item := Item{
			ID:        l.nextID,
			Sender:    label,
			Timestamp: now,
		}
		l.nextID++
		if isTranslation {
			item.Translation = text
		} else {
			item.Original = text
		}
		l.items = append(l.items, item)
		if len(l.items) > maxItems {
			l.items = l.items[len(l.items)-maxItems:]
		}
		changed = item
	}

	fn := l.onChange
	l.mu.Unlock()

	if fn != nil {
		fn(changed)
	}
}

// Items returns a copy of the current history, oldest first.
func (l *Log) Items() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

func joinText(existing, text string) string {
	if existing == "" {
		return text
	}
	if strings.HasSuffix(existing, " ") {
		return strings.TrimSpace(existing + text)
	}
	return strings.TrimSpace(existing + " " + text)
}
