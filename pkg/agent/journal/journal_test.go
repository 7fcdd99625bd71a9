// Copyright (c) Sony Research Inc. All rights reserved.

package journal

import (
	"testing"
	"time"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(t.TempDir(), "TEST01", 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return j
}

func TestJournal_AppendAndQuery(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{
			name: "Append a runtime error",
			rec: Record{
				Serial:    "TEST01",
				Kind:      "runtime_error",
				Message:   "usb transfer stalled",
				Timestamp: time.Now().UnixMilli(),
				Severity:  2,
			},
		},
		{
			name: "Defaults filled in",
			rec:  Record{Serial: "TEST01", Message: "camera started"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newTestJournal(t)

			if _, err := j.Append(tt.rec); (err != nil) != tt.wantErr {
				t.Fatalf("Append error = %v, wantErr %v", err, tt.wantErr)
			}

			recs, err := j.Query(Filter{})
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(recs) != 1 {
				t.Fatalf("Query returned %d records, want 1", len(recs))
			}
			if recs[0].ID == "" || recs[0].Timestamp == 0 {
				t.Error("Append did not fill in ID/timestamp defaults")
			}
			if recs[0].Message != tt.rec.Message {
				t.Errorf("message = %q, want %q", recs[0].Message, tt.rec.Message)
			}
		})
	}
}

func TestJournal_FilterBySeverityAndKind(t *testing.T) {
	j := newTestJournal(t)
	now := time.Now().UnixMilli()

	j.Append(Record{Kind: "status", Message: "camera started", Timestamp: now, Severity: 0})
	j.Append(Record{Kind: "runtime_error", Message: "bad packet", Timestamp: now + 1, Severity: 2})
	j.Append(Record{Kind: "backpressure", Message: "queue depth growing", Timestamp: now + 2, Severity: 1})

	recs, err := j.Query(Filter{MinSeverity: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("MinSeverity=1 returned %d records, want 2", len(recs))
	}

	recs, err = j.Query(Filter{Kind: "runtime_error"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Message != "bad packet" {
		t.Errorf("Kind filter returned %v, want the runtime_error record", recs)
	}
}

func TestJournal_NewestFirst(t *testing.T) {
	j := newTestJournal(t)
	base := time.Now().UnixMilli()
	j.Append(Record{Message: "first", Timestamp: base})
	j.Append(Record{Message: "second", Timestamp: base + 10})

	recs, err := j.Query(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Message != "second" {
		t.Errorf("order = %v, want newest first", recs)
	}
}

func TestJournal_UnackedQueryConsumesRecords(t *testing.T) {
	j := newTestJournal(t)
	j.Append(Record{Message: "one-shot", Timestamp: time.Now().UnixMilli()})

	recs, err := j.Query(Filter{Unacked: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("first unacked query returned %d records, want 1", len(recs))
	}

	recs, err = j.Query(Filter{Unacked: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("second unacked query returned %d records, want 0", len(recs))
	}
}

func TestJournal_ReindexOnReopen(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir, "TEST01", 0)
	if err != nil {
		t.Fatal(err)
	}
	j.Append(Record{Message: "survives restart", Timestamp: time.Now().UnixMilli()})

	reopened, err := New(dir, "TEST01", 0)
	if err != nil {
		t.Fatal(err)
	}
	recs, err := reopened.Query(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Message != "survives restart" {
		t.Errorf("reopened journal returned %v, want the persisted record", recs)
	}
}
