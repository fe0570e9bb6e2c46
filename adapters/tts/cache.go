package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/satriahrh/formcoach/domain/repositories"
)

const (
	defaultCacheSize = 100

	// synthesisTimeout bounds a shared backend call, which outlives any
	// single caller's context.
	synthesisTimeout = 30 * time.Second
)

// CachedTTS wraps a TextToSpeech backend with an LRU cache of synthesized clips.
// Concurrent requests for the same clip share one backend call.
type CachedTTS struct {
	next   repositories.TextToSpeech
	cache  *lru.Cache[string, []byte]
	group  singleflight.Group
	// timeout bounds each shared backend call
	timeout time.Duration
	logger  *zap.Logger
}

var (
	_ repositories.TextToSpeech = (*CachedTTS)(nil)
	_ repositories.VoiceLister  = (*CachedTTS)(nil)
)

// NewCachedTTS creates a caching decorator holding up to size clips
func NewCachedTTS(next repositories.TextToSpeech, size int, logger *zap.Logger) (*CachedTTS, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio cache: %w", err)
	}
	return &CachedTTS{
		next:    next,
		cache:   cache,
		timeout: synthesisTimeout,
		logger:  logger,
	}, nil
}

func cacheKey(req repositories.SpeechRequest) string {
	s := req.Settings
	return fmt.Sprintf("%s:%s:%.3f:%.3f:%.3f:%t:%.3f",
		req.Text, req.VoiceID, s.Stability, s.SimilarityBoost, s.Style, s.UseSpeakerBoost, s.SpeakingRate)
}

// SynthesizeSpeech returns the cached clip or synthesizes and caches it
func (c *CachedTTS) SynthesizeSpeech(ctx context.Context, req repositories.SpeechRequest) ([]byte, error) {
	key := cacheKey(req)
	if audio, ok := c.cache.Get(key); ok {
		c.logger.Debug("Found audio in cache", zap.String("voiceID", req.VoiceID), zap.Int("bytes", len(audio)))
		return audio, nil
	}

	// The shared call outlives any one caller; each caller stops waiting
	// when its own context ends.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		audio, err := c.next.SynthesizeSpeech(callCtx, req)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, audio)
		return audio, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// ListVoices delegates to the wrapped backend when it supports listing
func (c *CachedTTS) ListVoices(ctx context.Context) ([]repositories.Voice, error) {
	lister, ok := c.next.(repositories.VoiceLister)
	if !ok {
		return nil, errors.ErrUnsupported
	}
	return lister.ListVoices(ctx)
}

// Len returns the number of cached clips
func (c *CachedTTS) Len() int {
	return c.cache.Len()
}

// Purge empties the cache
func (c *CachedTTS) Purge() {
	c.cache.Purge()
	c.logger.Info("Cleared audio cache")
}
