package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"serve", "analyze", "stream"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered: %v", name, err)
		}
	}
}

func TestListFrames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "notes.txt", "c.jpeg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}

	frames, err := listFrames(dir)
	if err != nil {
		t.Fatalf("listFrames failed: %v", err)
	}

	want := []string{"a.JPG", "b.png", "c.jpeg"}
	if len(frames) != len(want) {
		t.Fatalf("got %v, want %v", frames, want)
	}
	for i, name := range want {
		if filepath.Base(frames[i]) != name {
			t.Errorf("frames[%d] = %s, want %s", i, frames[i], name)
		}
	}
}

func TestStreamSavesAudio(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"text","data":{"feedback":"Lower your hips"}}`))
			conn.WriteMessage(websocket.BinaryMessage, []byte("ID3audio"))
		}
	}))
	defer server.Close()

	frames := t.TempDir()
	if err := os.WriteFile(filepath.Join(frames, "001.jpg"), []byte{0xFF, 0xD8, 0xFF}, 0o600); err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()

	err := stream(streamOptions{
		url:      "ws" + strings.TrimPrefix(server.URL, "http"),
		dir:      frames,
		outDir:   out,
		interval: 10 * time.Millisecond,
		wait:     300 * time.Millisecond,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	audio, err := os.ReadFile(filepath.Join(out, "feedback-001.mp3"))
	if err != nil {
		t.Fatalf("audio not saved: %v", err)
	}
	if string(audio) != "ID3audio" {
		t.Errorf("unexpected audio %q", audio)
	}
}

func TestStreamRequiresFrames(t *testing.T) {
	err := stream(streamOptions{dir: t.TempDir()}, zap.NewNop())
	if err == nil {
		t.Error("Expected error for empty frame directory")
	}
}
