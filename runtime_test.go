package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"go.palabra.dev/client/audiocodec"
	"go.palabra.dev/client/errs"
	"go.palabra.dev/client/session"
	"go.palabra.dev/client/wire"
)

// silenceSource yields n chunks of 48 kHz PCM16LE silence, then io.EOF.
type silenceSource struct {
	mu       sync.Mutex
	remain   int
	chunkLen int
	closed   bool
}

func (s *silenceSource) Read(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remain <= 0 {
		return nil, io.EOF
	}
	s.remain--
	return make([]byte, s.chunkLen), nil
}
func (s *silenceSource) Ready() bool { return true }
func (s *silenceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type capturingSink struct {
	mu     sync.Mutex
	frames int
	bytes  int
	closed bool
}

func (s *capturingSink) Write(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	s.bytes += len(pcm)
	return nil
}
func (s *capturingSink) Ready() bool { return true }
func (s *capturingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// testServer runs both the REST handshake and the control channel
// websocket against one httptest.Server, mimicking the real service
// closely enough to drive Runtime end-to-end without a network.
type testServer struct {
	srv        *httptest.Server
	sawSetTask chan wire.SetTaskPayload
	firstType  chan string // message_type of the first frame received
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
}

func (ts *testServer) close() { ts.srv.Close() }

func finalTranscriptionEnvelope(id, lang, text string) wire.Envelope {
	data, _ := json.Marshal(wire.Transcription{Transcription: wire.TranscriptionPayload{
		TranscriptionID: id, Language: lang, Text: text,
	}})
	return wire.Envelope{MessageType: wire.TypeFinalTranscription, Data: data}
}

func audioEnvelope(pcm24 []byte) wire.Envelope {
	data, _ := json.Marshal(wire.OutputAudioData{Data: audiocodec.EncodeBase64(pcm24)})
	return wire.Envelope{MessageType: wire.TypeOutputAudioData, Data: data}
}

func newHarness(t *testing.T, toSend []wire.Envelope) (*testServer, session.Credentials) {
	t.Helper()
	ts := &testServer{sawSetTask: make(chan wire.SetTaskPayload, 1), firstType: make(chan string, 1)}

	mux := http.NewServeMux()
	mux.HandleFunc("/session-storage/session", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"data": map[string]any{
				"publisher":   "pub-tok",
				"room_name":   "room-1",
				"control_url": ts.wsURL(),
			},
		})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var env wire.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			select {
			case ts.firstType <- env.MessageType:
			default:
			}
			if env.MessageType == wire.TypeSetTask {
				var task wire.SetTaskPayload
				norm, _ := env.NormalizeData()
				json.Unmarshal(norm, &task)
				select {
				case ts.sawSetTask <- task:
				default:
				}
				for _, out := range toSend {
					raw, _ := json.Marshal(out)
					conn.Write(ctx, websocket.MessageText, raw)
				}
			}
		}
	})
	ts.srv = httptest.NewServer(mux)
	t.Cleanup(ts.close)

	cred := session.Credentials{ClientID: "cid", ClientSecret: "secret", BaseURL: ts.srv.URL}
	return ts, cred
}

func TestRuntimeHappyPath(t *testing.T) {
	pcm := make([]byte, 48)
	ts, cred := newHarness(t, []wire.Envelope{
		audioEnvelope(pcm),
		audioEnvelope(pcm),
		finalTranscriptionEnvelope("t1", "en", "hola"),
	})
	_ = ts

	var gotEvents []wire.TranscriptionEvent
	var mu sync.Mutex
	rt := NewRuntime(
		WithPostSetTaskDelay(10*time.Millisecond),
		WithTranscriptionHandler(func(e wire.TranscriptionEvent) {
			mu.Lock()
			gotEvents = append(gotEvents, e)
			mu.Unlock()
		}),
	)

	src := &silenceSource{remain: 1, chunkLen: 96}
	sink := &capturingSink{}
	cfg := NewSessionConfiguration(
		SourceSpec{Language: "en", Source: src},
		[]TargetSpec{{Language: "es", Sink: sink}},
	)

	err := rt.RunWithTimeout(cred, cfg, 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	sink.mu.Lock()
	frames := sink.frames
	sink.mu.Unlock()
	if frames != 2 {
		t.Fatalf("got %d sink writes, want 2", frames)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(gotEvents) != 1 || gotEvents[0].Text != "hola" {
		t.Fatalf("got events %+v", gotEvents)
	}

	if !src.closed || !sink.closed {
		t.Fatal("expected source and sink to be closed on completion")
	}
}

func TestRuntimeSetTaskPrecedesAudio(t *testing.T) {
	// Completion detection needs at least one audio frame to have a
	// quiescence window to measure against; without one the run only
	// completes via the 30 s absolute bound, which this test's timeout
	// isn't meant to exercise.
	ts, cred := newHarness(t, []wire.Envelope{audioEnvelope(make([]byte, 4))})
	_ = ts

	rt := NewRuntime(WithPostSetTaskDelay(5 * time.Millisecond))
	src := &silenceSource{remain: 1, chunkLen: 4}
	sink := &capturingSink{}
	cfg := NewSessionConfiguration(
		SourceSpec{Language: "en", Source: src},
		[]TargetSpec{{Language: "es", Sink: sink}},
	)

	if err := rt.RunWithTimeout(cred, cfg, 5*time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case task := <-ts.sawSetTask:
		if task.Source.Lang != "en" || len(task.Targets) != 1 || task.Targets[0].Lang != "es" {
			t.Fatalf("got task %+v", task)
		}
	default:
		t.Fatal("server never saw set_task")
	}

	select {
	case first := <-ts.firstType:
		if first != wire.TypeSetTask {
			t.Fatalf("first frame was %q, want %q", first, wire.TypeSetTask)
		}
	default:
		t.Fatal("server recorded no first frame")
	}
}

func TestRuntimeNoCredentialsFailsSynchronously(t *testing.T) {
	rt := NewRuntime()
	src := &silenceSource{remain: 1, chunkLen: 4}
	sink := &capturingSink{}
	cfg := NewSessionConfiguration(
		SourceSpec{Language: "en", Source: src},
		[]TargetSpec{{Language: "es", Sink: sink}},
	)

	err := rt.Run(session.Credentials{ClientSecret: "x"}, cfg)
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.InvalidArgument {
		t.Fatalf("got %v", err)
	}
}

func TestRuntimeServerErrorSurfacesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ok": false,
			"errors": []map[string]any{
				{"title": "quota", "detail": "exceeded", "status": 429},
			},
		})
	}))
	defer srv.Close()

	rt := NewRuntime()
	src := &silenceSource{remain: 1, chunkLen: 4}
	sink := &capturingSink{}
	cfg := NewSessionConfiguration(
		SourceSpec{Language: "en", Source: src},
		[]TargetSpec{{Language: "es", Sink: sink}},
	)

	err := rt.Run(session.Credentials{ClientID: "cid", ClientSecret: "secret", BaseURL: srv.URL}, cfg)
	if err == nil || !strings.Contains(err.Error(), "quota - exceeded") {
		t.Fatalf("got %v", err)
	}
}

func TestRuntimeCancelMidStream(t *testing.T) {
	ts, cred := newHarness(t, nil)
	_ = ts

	rt := NewRuntime(WithPostSetTaskDelay(5 * time.Millisecond))
	src := &silenceSource{remain: 1_000_000, chunkLen: 4}
	sink := &capturingSink{}
	cfg := NewSessionConfiguration(
		SourceSpec{Language: "en", Source: src},
		[]TargetSpec{{Language: "es", Sink: sink}},
	)

	done := make(chan error, 1)
	go func() { done <- rt.Run(cred, cfg) }()

	time.Sleep(100 * time.Millisecond)
	rt.Cancel()

	select {
	case err := <-done:
		var e *errs.Error
		if !errors.As(err, &e) || e.Kind != errs.Cancelled {
			t.Fatalf("got %v, want Cancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run never returned after Cancel")
	}

	if !src.closed || !sink.closed {
		t.Fatal("expected source and sink to be closed after cancel")
	}
}

func TestRuntimeUnknownLanguageContinuesSession(t *testing.T) {
	ts, cred := newHarness(t, []wire.Envelope{
		finalTranscriptionEnvelope("t1", "xx", "bad"),
		finalTranscriptionEnvelope("t2", "en", "good"),
		audioEnvelope(make([]byte, 4)),
	})
	_ = ts

	var got []wire.TranscriptionEvent
	var mu sync.Mutex
	rt := NewRuntime(
		WithPostSetTaskDelay(5*time.Millisecond),
		WithTranscriptionHandler(func(e wire.TranscriptionEvent) {
			mu.Lock()
			got = append(got, e)
			mu.Unlock()
		}),
	)
	src := &silenceSource{remain: 1, chunkLen: 4}
	sink := &capturingSink{}
	cfg := NewSessionConfiguration(
		SourceSpec{Language: "en", Source: src},
		[]TargetSpec{{Language: "es", Sink: sink}},
	)

	if err := rt.RunWithTimeout(cred, cfg, 5*time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].TranscriptionID != "t2" {
		t.Fatalf("expected only the valid-language transcription to be delivered, got %+v", got)
	}
}
