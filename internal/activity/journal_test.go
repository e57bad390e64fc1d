package activity

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJournal_RecordAndRead(t *testing.T) {
	j := Open(filepath.Join(t.TempDir(), "nested", "activity.jsonl"))

	if err := j.Record(ActionTraffic, "1->2", "n=10 kind=WiFi enqueued=7", nil); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := j.Record(ActionDelete, "node 4", "", errors.New("404 not found")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := j.Record(ActionControl, "start", "", nil); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := j.Read(0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.After(entries[i-1].Timestamp) {
			t.Error("entries should be newest first")
		}
	}

	var del Entry
	for _, e := range entries {
		if e.Action == ActionDelete {
			del = e
		}
	}
	if del.OK() || del.Error != "404 not found" {
		t.Errorf("expected failed delete entry, got %+v", del)
	}

	last, _ := j.Read(2)
	if len(last) != 2 {
		t.Errorf("expected 2 entries with limit, got %d", len(last))
	}
}

func TestJournal_Search(t *testing.T) {
	j := Open(filepath.Join(t.TempDir(), "activity.jsonl"))
	j.Record(ActionTraffic, "1->2", "kind=WiFi", nil)
	j.Record(ActionTraffic, "3->4", "kind=BLE", nil)
	j.Record(ActionPublish, "5", "topic=sensors/temp", nil)

	tests := []struct {
		query string
		want  int
	}{
		{"traffic", 2},
		{"wifi", 1},
		{"SENSORS", 1},
		{"", 3},
		{"zigbee", 0},
	}
	for _, tt := range tests {
		got, err := j.Search(tt.query, 0)
		if err != nil {
			t.Fatalf("Search(%q) failed: %v", tt.query, err)
		}
		if len(got) != tt.want {
			t.Errorf("Search(%q): expected %d, got %d", tt.query, tt.want, len(got))
		}
	}
}

func TestJournal_MissingAndCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	j := Open(path)

	entries, err := j.Read(10)
	if err != nil || entries != nil {
		t.Errorf("missing journal should read as empty, got %v, %v", entries, err)
	}
	if err := j.Clear(); err != nil {
		t.Errorf("clearing a missing journal should succeed, got %v", err)
	}

	j.Record(ActionAdd, "node 1", "", nil)
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString("not json\n\n")
	f.Close()

	entries, err = j.Read(0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("corrupt lines should be skipped, got %d entries", len(entries))
	}

	if err := j.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("journal file should be gone after Clear")
	}
}

func TestDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)
	got := DefaultPath()
	if !strings.HasPrefix(got, dir) || filepath.Base(got) != "activity.jsonl" {
		t.Errorf("unexpected default path %s", got)
	}
}
