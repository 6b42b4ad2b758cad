package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kwang/interview-server/internal/recordings"
	"github.com/kwang/interview-server/internal/storage"
)

func TestEventSerialization(t *testing.T) {
	events := []any{
		SessionStartedEvent{Event: newEvent("session_started", time.Unix(1, 0)), SessionID: "abc"},
		TurnEvent{Event: newEvent("turn", time.Unix(1, 0)), SessionID: "abc", Role: "candidate", Text: "hello"},
		MediaSavedEvent{Event: newEvent("media_saved", time.Unix(1, 0)), SessionID: "abc", Kind: "video", File: "video_1.webm"},
		SessionClosedEvent{Event: newEvent("session_closed", time.Unix(1, 0)), SessionID: "abc", Duration: 30},
		finishedEvent("abc", recordings.CombineResult{Success: true}, time.Unix(1, 0)),
		SummaryReadyEvent{Event: newEvent("summary_ready", time.Unix(1, 0)), SessionID: "abc", Summary: "ok"},
	}

	for _, event := range events {
		b, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}

		var payload map[string]any
		if err := json.Unmarshal(b, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}

		if payload["type"] == nil {
			t.Fatalf("missing type in payload: %s", string(b))
		}
		if payload["version"] == nil {
			t.Fatalf("missing version in payload: %s", string(b))
		}
		if payload["timestamp"] == nil {
			t.Fatalf("missing timestamp in payload: %s", string(b))
		}
		if payload["session_id"] != "abc" {
			t.Fatalf("missing session_id in payload: %s", string(b))
		}
	}
}

func TestHubBroadcastEventShapes(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.BroadcastTurn("s1", storage.Turn{Index: 3, Role: "interviewer", Text: "Why Go?", Timestamp: time.Now().UTC()})
	hub.BroadcastMediaSaved("s1", recordings.Record{Kind: recordings.KindCandidateAudio, Path: "/r/s1/response_1.mp3", SizeBytes: 42})
	hub.BroadcastSessionFinished("s1", recordings.CombineResult{Success: true, Audio: recordings.KindResult{Combined: true}})

	want := []string{"turn", "media_saved", "session_finished"}
	for _, typ := range want {
		select {
		case msg := <-ch:
			var payload map[string]any
			if err := json.Unmarshal(msg, &payload); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if payload["type"] != typ {
				t.Fatalf("expected event type %s, got %#v", typ, payload["type"])
			}
			switch typ {
			case "turn":
				if payload["index"] != float64(3) || payload["text"] != "Why Go?" {
					t.Fatalf("unexpected turn payload %s", msg)
				}
			case "media_saved":
				if payload["file"] != "response_1.mp3" || payload["kind"] != "candidate-audio" {
					t.Fatalf("unexpected media payload %s", msg)
				}
			case "session_finished":
				if payload["audio_combined"] != true || payload["video_combined"] != false {
					t.Fatalf("unexpected finished payload %s", msg)
				}
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", typ)
		}
	}
}
