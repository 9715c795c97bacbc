package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestEncode_HeartbeatIsByteExact(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	frame, err := Encode(NewMessage(KindHeartbeat, nil, ts))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := "data: {\"type\":\"heartbeat\",\"timestamp\":\"2024-01-01T00:00:00.000Z\"}\n\n"
	if string(frame) != want {
		t.Fatalf("frame = %q, want %q", frame, want)
	}
}

func TestEncode_SingleLineWithPayload(t *testing.T) {
	msg := NewMessage(KindSystemAlert, Payload{"message": "disk\nfull", "severity": "critical"}, time.Now())
	frame, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	body := strings.TrimSuffix(string(frame), "\n\n")
	if strings.Contains(body, "\n") {
		t.Fatalf("frame body must be a single line, got %q", body)
	}
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("frame must start with data marker, got %q", body)
	}
}

func TestFormatTimestamp_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 3, 5, 14, 7, 9, 123456789, loc)

	if got, want := FormatTimestamp(ts), "2024-03-05T12:07:09.123Z"; got != want {
		t.Fatalf("FormatTimestamp = %q, want %q", got, want)
	}
}

func TestDecoder_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var sb strings.Builder
	msgs := []Message{
		NewMessage(KindConnectionEstablished, Payload{"clientId": "c1"}, ts),
		NewMessage(KindUserCreated, Payload{"email": "a@example.com", "userId": "u1"}, ts),
		NewMessage(KindHeartbeat, nil, ts),
	}
	for _, m := range msgs {
		if err := WriteFrame(&sb, m); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	dec := NewDecoder(strings.NewReader(sb.String()))
	for i, want := range msgs {
		data, err := dec.Next()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		got, err := ParseMessage(data)
		if err != nil {
			t.Fatalf("frame %d: ParseMessage: %v", i, err)
		}
		if got.Type != want.Type || got.Timestamp != want.Timestamp {
			t.Errorf("frame %d = %+v, want %+v", i, got, want)
		}
	}
	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after last frame, got %v", err)
	}
}

func TestDecoder_IgnoresCommentsAndFields(t *testing.T) {
	stream := ": keep-alive\n\nid: 42\nevent: ping\nretry: 1000\ndata: {\"type\":\"heartbeat\"}\r\n\r\n"

	dec := NewDecoder(strings.NewReader(stream))
	data, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(data) != `{"type":"heartbeat"}` {
		t.Fatalf("data = %q", data)
	}
}

func TestDecoder_JoinsMultipleDataLines(t *testing.T) {
	dec := NewDecoder(strings.NewReader("data: first\ndata:second\n\n"))
	data, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(data) != "first\nsecond" {
		t.Fatalf("data = %q, want %q", data, "first\nsecond")
	}
}

func TestDecoder_TrailingFrameWithoutBlankLine(t *testing.T) {
	dec := NewDecoder(strings.NewReader("data: tail"))
	data, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(data) != "tail" {
		t.Fatalf("data = %q, want %q", data, "tail")
	}
}

func TestDecoder_SkipsOversizedFrame(t *testing.T) {
	huge := strings.Repeat("x", MaxFrameSize+10)
	stream := "data: {\"type\":\"heartbeat\"}\n\n" +
		"data: " + huge + "\n\n" +
		"data: " + huge[:MaxFrameSize/2] + "\ndata: " + huge[:MaxFrameSize/2] + "\n\n" +
		"data: {\"type\":\"user_created\"}\n\n"

	dec := NewDecoder(strings.NewReader(stream))
	var got []string
	for {
		data, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, string(data))
	}

	want := []string{`{"type":"heartbeat"}`, `{"type":"user_created"}`}
	if len(got) != len(want) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %.40q, want %q", i, got[i], want[i])
		}
	}
}

func TestDecoder_LongLineWithinLimit(t *testing.T) {
	value := strings.Repeat("y", 64*1024)
	dec := NewDecoder(strings.NewReader("data: " + value + "\r\n\r\n"))
	data, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(data) != value {
		t.Fatalf("decoded %d bytes, want %d", len(data), len(value))
	}
}

func TestParseMessage_Errors(t *testing.T) {
	if _, err := ParseMessage([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if _, err := ParseMessage([]byte(`{"timestamp":"x"}`)); !errors.Is(err, ErrMissingType) {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
}

func TestKindClassification(t *testing.T) {
	for _, k := range DomainKinds {
		if !k.IsDomain() || k.IsTransport() {
			t.Errorf("%s should be a domain kind", k)
		}
	}
	for _, k := range []Kind{KindConnectionEstablished, KindHeartbeat} {
		if k.IsDomain() || !k.IsTransport() {
			t.Errorf("%s should be a transport kind", k)
		}
	}
	if Kind("user_deleted").IsDomain() {
		t.Error("unknown kind must not be a domain kind")
	}
}

func TestEvent_Reaches(t *testing.T) {
	all := Event{}
	if !all.Reaches("adm_1") {
		t.Error("empty audience should reach every admin")
	}

	scoped := Event{Audience: []string{"adm_1", "adm_2"}}
	if !scoped.Reaches("adm_2") {
		t.Error("adm_2 is in the audience")
	}
	if scoped.Reaches("adm_3") {
		t.Error("adm_3 is not in the audience")
	}
}
