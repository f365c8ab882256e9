package translate

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/olivermeyer777/post-translatorv1/internal/signaling"
)

func TestQuickFollowupMerges(t *testing.T) {
	clk := clock.NewMock()
	log := NewLog(clk)

	log.Add("Hello", signaling.RoleAgent, false)
	clk.Add(time.Second)
	log.Add("there", signaling.RoleAgent, false)

	items := log.Items()
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Original != "Hello there" {
		t.Fatalf("original = %q", items[0].Original)
	}
}

func TestPauseStartsNewBubble(t *testing.T) {
	clk := clock.NewMock()
	log := NewLog(clk)

	log.Add("Hello", signaling.RoleAgent, false)
	clk.Add(5 * time.Second)
	log.Add("again", signaling.RoleAgent, false)

	items := log.Items()
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Original != "Hello" || items[1].Original != "again" {
		t.Fatalf("items = %q, %q", items[0].Original, items[1].Original)
	}
}

func TestTranslationMergesAcrossPause(t *testing.T) {
	clk := clock.NewMock()
	log := NewLog(clk)

	log.Add("Guten Tag", signaling.RoleCustomer, false)
	clk.Add(10 * time.Second)
	log.Add("Good day", signaling.RoleCustomer, true)

	items := log.Items()
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Original != "Guten Tag" || items[0].Translation != "Good day" {
		t.Fatalf("item = %+v", items[0])
	}
}

func TestSenderChangeStartsNewBubble(t *testing.T) {
	clk := clock.NewMock()
	log := NewLog(clk)

	log.Add("Hello", signaling.RoleAgent, false)
	log.Add("Hallo", signaling.RoleCustomer, false)

	items := log.Items()
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Sender == items[1].Sender {
		t.Fatal("sender change must not merge")
	}
}

func TestInterimThenFinalDoesNotDuplicate(t *testing.T) {
	clk := clock.NewMock()
	log := NewLog(clk)

	// Partial fragments arrive rapidly, then the closing fragment.
	log.Add("How are", signaling.RoleAgent, false)
	clk.Add(500 * time.Millisecond)
	log.Add("you today?", signaling.RoleAgent, false)

	items := log.Items()
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Original != "How are you today?" {
		t.Fatalf("original = %q", items[0].Original)
	}
}

func TestHistoryBounded(t *testing.T) {
	clk := clock.NewMock()
	log := NewLog(clk)

	for i := 0; i < maxItems+10; i++ {
		log.Add("line", signaling.RoleAgent, false)
		clk.Add(pauseThreshold) // force a new bubble each time
	}

	if got := len(log.Items()); got != maxItems {
		t.Fatalf("got %d items, want %d", got, maxItems)
	}
}

func TestEmptyTextIgnored(t *testing.T) {
	log := NewLog(clock.NewMock())
	log.Add("   ", signaling.RoleAgent, false)
	if got := len(log.Items()); got != 0 {
		t.Fatalf("got %d items, want 0", got)
	}
}

func TestOnChangeReportsMergedItem(t *testing.T) {
	clk := clock.NewMock()
	log := NewLog(clk)

	var last Item
	log.OnChange(func(item Item) { last = item })

	log.Add("Guten Tag", signaling.RoleCustomer, false)
	log.Add("Good day", signaling.RoleCustomer, true)

	if last.Original != "Guten Tag" || last.Translation != "Good day" {
		t.Fatalf("last change = %+v", last)
	}
}
