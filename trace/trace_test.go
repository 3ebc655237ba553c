package trace

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func testRecords() []Record {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Record{
		{Time: base, Session: "s1", Dir: DirSend, DLCI: 0, Kind: "SABM", PollFinal: true},
		{Time: base.Add(time.Second), Session: "s1", Dir: DirReceive, DLCI: 0, Kind: "UA", PollFinal: true},
		{Time: base.Add(2 * time.Second), Session: "s1", Dir: DirSend, DLCI: 10, Kind: "UIH", Length: 42, Detail: "{UIH DLCI:10}"},
	}
}

func testRoundTrip(t *testing.T, codec Codec) {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, codec)
	want := testRecords()
	for _, rec := range want {
		if err := w.Record(rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	r := NewReader(&buf, codec)
	for i, wantRec := range want {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if !got.Time.Equal(wantRec.Time) {
			t.Errorf("record %d time = %v, want %v", i, got.Time, wantRec.Time)
		}
		got.Time = wantRec.Time
		if got != wantRec {
			t.Errorf("record %d = %+v, want %+v", i, got, wantRec)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next past end = %v, want io.EOF", err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	testRoundTrip(t, JSONCodec{})
}

func TestCBORRoundTrip(t *testing.T) {
	testRoundTrip(t, CBORCodec{})
}

func TestWriterStampsTime(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, JSONCodec{})
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	if err := w.Record(Record{Session: "s1", Dir: DirSend, Kind: "SABM"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := NewReader(&buf, JSONCodec{}).Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !got.Time.Equal(fixed) {
		t.Errorf("time = %v, want the writer's clock %v", got.Time, fixed)
	}
}
