package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/formcoach/internal/config"
	"github.com/satriahrh/formcoach/internal/logging"
)

type streamOptions struct {
	url      string
	dir      string
	outDir   string
	interval time.Duration
	wait     time.Duration
}

func newStreamCmd() *cobra.Command {
	opts := streamOptions{}

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Replay a directory of images over the WebSocket and save the feedback",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, flush, err := logging.New(config.LogConfig{Level: "info", Format: "console"})
			if err != nil {
				return err
			}
			defer flush()
			return stream(opts, logger)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "ws://localhost:8000/ws/exercise-analysis/dev-client", "WebSocket endpoint")
	cmd.Flags().StringVar(&opts.dir, "dir", "frames", "directory of .jpg/.jpeg/.png frames, sent in name order")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "directory for received audio clips (not saved when empty)")
	cmd.Flags().DurationVar(&opts.interval, "interval", 500*time.Millisecond, "delay between frames")
	cmd.Flags().DurationVar(&opts.wait, "wait", 5*time.Second, "how long to wait for feedback after the last frame")

	return cmd
}

func stream(opts streamOptions, logger *zap.Logger) error {
	frames, err := listFrames(opts.dir)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("no frames found in %s", opts.dir)
	}
	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return err
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	logger.Info("Connecting", zap.String("url", opts.url))
	conn, _, err := websocket.DefaultDialer.Dial(opts.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go readFeedback(conn, opts.outDir, logger, done)

	if err := conn.WriteJSON(map[string]string{"type": "start_session"}); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for i, path := range frames {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return fmt.Errorf("send frame: %w", err)
		}
		logger.Info("Frame sent", zap.Int("index", i), zap.String("file", filepath.Base(path)), zap.Int("bytes", len(data)))

		select {
		case <-ticker.C:
		case <-done:
			return nil
		case <-interrupt:
			return closeStream(conn, done)
		}
	}

	select {
	case <-time.After(opts.wait):
	case <-done:
		return nil
	case <-interrupt:
	}

	if err := conn.WriteJSON(map[string]string{"type": "stop_session"}); err != nil {
		logger.Warn("Failed to stop session", zap.Error(err))
	}
	return closeStream(conn, done)
}

// closeStream sends a close frame and waits briefly for the server to close.
func closeStream(conn *websocket.Conn, done <-chan struct{}) error {
	err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}

func readFeedback(conn *websocket.Conn, outDir string, logger *zap.Logger, done chan<- struct{}) {
	defer close(done)

	clips := 0
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Info("Connection closed", zap.Error(err))
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			clips++
			if outDir == "" {
				logger.Info("Audio received", zap.Int("bytes", len(payload)))
				continue
			}
			path := filepath.Join(outDir, fmt.Sprintf("feedback-%03d.mp3", clips))
			if err := os.WriteFile(path, payload, 0o644); err != nil {
				logger.Error("Failed to save audio", zap.Error(err))
				continue
			}
			logger.Info("Audio saved", zap.String("path", path), zap.Int("bytes", len(payload)))
			continue
		}

		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Warn("Unexpected message", zap.ByteString("payload", payload))
			continue
		}
		logger.Info("Message received", zap.String("type", msg.Type), zap.ByteString("data", msg.Data))
	}
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames directory: %w", err)
	}

	var frames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			frames = append(frames, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(frames)
	return frames, nil
}
