// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assist provides speech recognition and labeling help for
// annotation sessions: Whisper transcription of segment clips and
// chat-model label suggestions for groups. Both go through one rate
// limiter so an eager annotator cannot stampede the API.
package assist

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// mediaExtensions are the media file extensions tried per document,
// in preference order. Clip slicing only works for WAV; other formats
// are uploaded whole.
var mediaExtensions = []string{".wav", ".mp3", ".m4a", ".ogg"}

// labelPrompt asks for a short speaker/topic label. The model sees the
// transcripts joined below it.
const labelPrompt = `You label sections of annotated audio recordings.
Given the transcript snippets below, answer with a short label (at most
five words) describing the speaker or topic. Answer with the label only,
no quotes and no explanation.`

// Config configures the assist client.
type Config struct {
	// APIKey is the OpenAI API key. When empty, the OPENAI_API_KEY
	// environment variable and then APIKeyFile are tried.
	APIKey string

	// APIKeyFile is a file holding the API key (e.g. a container secret).
	APIKeyFile string

	// ChatModel is the labeling model. Default: gpt-4o-mini
	ChatModel string

	// WhisperModel is the transcription model. Default: whisper-1
	WhisperModel string

	// MediaDir is the directory holding one media file per document.
	MediaDir string

	// RequestsPerMinute bounds API calls. Default: 20
	RequestsPerMinute int

	// Logger for assist operations. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChatModel:         "gpt-4o-mini",
		WhisperModel:      openai.Whisper1,
		RequestsPerMinute: 20,
	}
}

// Client implements the service's Assist interface against the OpenAI API.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	api     *openai.Client
	config  Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates an assist client. The API key is resolved from the config,
// the environment, then the key file; without one the constructor fails
// so a misconfigured deployment is caught at startup, not first use.
func New(config Config) (*Client, error) {
	if config.ChatModel == "" {
		config.ChatModel = DefaultConfig().ChatModel
	}
	if config.WhisperModel == "" {
		config.WhisperModel = DefaultConfig().WhisperModel
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	key := config.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" && config.APIKeyFile != "" {
		data, err := os.ReadFile(config.APIKeyFile)
		if err == nil {
			key = strings.TrimSpace(string(data))
		}
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}

	interval := rate.Every(time.Minute / time.Duration(config.RequestsPerMinute))
	return &Client{
		api:     openai.NewClient(key),
		config:  config,
		limiter: rate.NewLimiter(interval, config.RequestsPerMinute),
		logger:  config.Logger.With("component", "assist"),
	}, nil
}

// TranscribeClip runs speech recognition over [start, end) seconds of
// the document's media file.
func (c *Client) TranscribeClip(ctx context.Context, document string, start, end float64) (string, error) {
	path, err := c.mediaPath(document)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read media: %w", err)
	}

	upload := data
	uploadName := filepath.Base(path)
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		clip, err := sliceWAV(data, start, end)
		if err != nil {
			return "", fmt.Errorf("slice clip: %w", err)
		}
		upload = clip
		uploadName = "clip.wav"
	} else {
		c.logger.Warn("media is not WAV, uploading whole file",
			"document", document, "path", path)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.config.WhisperModel,
		FilePath: uploadName,
		Reader:   bytes.NewReader(upload),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	c.logger.Debug("clip transcribed",
		"document", document, "start", start, "end", end, "chars", len(text))
	return text, nil
}

// SuggestLabel asks the chat model for a short label summarizing the
// given transcripts.
func (c *Client) SuggestLabel(ctx context.Context, transcripts []string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(labelPrompt)
	sb.WriteString("\n\n")
	for _, t := range transcripts {
		sb.WriteString("- ")
		sb.WriteString(t)
		sb.WriteString("\n")
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.config.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("label completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("label completion: empty response")
	}

	return cleanLabel(resp.Choices[0].Message.Content), nil
}

// mediaPath finds the media file for a document in the media directory.
func (c *Client) mediaPath(document string) (string, error) {
	for _, ext := range mediaExtensions {
		path := filepath.Join(c.config.MediaDir, document+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMediaNotFound, document)
}

// cleanLabel normalizes a model answer into a usable display label.
func cleanLabel(raw string) string {
	label := strings.TrimSpace(raw)
	label = strings.Trim(label, `"'`)
	label = strings.TrimSuffix(label, ".")
	if idx := strings.IndexByte(label, '\n'); idx >= 0 {
		label = label[:idx]
	}
	const maxLabel = 60
	if len(label) > maxLabel {
		label = strings.TrimSpace(label[:maxLabel])
	}
	return label
}
