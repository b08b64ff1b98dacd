// Package notify provides unit tests for the notification sinks.
package notify

import (
	"sync"
	"testing"
)

// TestNewMemoryRecordsNotifications verifies the constructor yields a
// usable sink.
func TestNewMemoryRecordsNotifications(t *testing.T) {
	sink := NewMemory()

	sink.Notify(New(TitleSyncComplete, "2 changes synced", LevelSuccess))
	sink.Notify(New(TitleSyncFailed, "network unreachable", LevelError))

	all := sink.All()
	if len(all) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(all))
	}
	if all[0].Title != TitleSyncComplete {
		t.Errorf("Expected %q first, got %q", TitleSyncComplete, all[0].Title)
	}
	if all[1].Level != LevelError {
		t.Errorf("Expected error level, got %q", all[1].Level)
	}
	if all[0].CreatedAt == 0 {
		t.Error("Expected a creation timestamp")
	}
}

// TestMemoryReset verifies Reset clears recorded notifications.
func TestMemoryReset(t *testing.T) {
	sink := NewMemory()
	sink.Notify(New(TitleConflictDetected, "invoice inv-1", LevelWarning))

	sink.Reset()

	if got := len(sink.All()); got != 0 {
		t.Errorf("Expected empty sink after reset, got %d", got)
	}
}

// TestMemoryAllReturnsCopy verifies mutating the returned slice does not
// affect the sink.
func TestMemoryAllReturnsCopy(t *testing.T) {
	sink := NewMemory()
	sink.Notify(New(TitleSyncStarted, "", LevelInfo))

	all := sink.All()
	all[0].Title = "mutated"

	if sink.All()[0].Title != TitleSyncStarted {
		t.Error("All should return a copy")
	}
}

// TestMemoryConcurrentNotify verifies the sink is safe for concurrent
// use.
func TestMemoryConcurrentNotify(t *testing.T) {
	sink := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sink.Notify(New(TitleSyncComplete, "", LevelInfo))
			}
		}()
	}
	wg.Wait()

	if got := len(sink.All()); got != 1000 {
		t.Errorf("Expected 1000 notifications, got %d", got)
	}
}

// TestDiscardAndFunc verifies the function adapter delivers and Discard
// drops.
func TestDiscardAndFunc(t *testing.T) {
	Discard.Notify(New(TitleSyncFailed, "", LevelError))

	var got Notification
	sink := Func(func(n Notification) { got = n })
	sink.Notify(New(TitleImportComplete, "5 records", LevelSuccess))

	if got.Title != TitleImportComplete {
		t.Errorf("Expected %q, got %q", TitleImportComplete, got.Title)
	}
}
