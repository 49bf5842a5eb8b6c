package whisper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
)

type Client struct {
	client *openai.Client
	model  string
	debug  bool
}

type Config struct {
	Token string
	// BaseURL overrides the API endpoint, e.g. for a local whisper server
	// exposing the OpenAI API.
	BaseURL string
	Model   string
	Debug   bool
}

func New(cfg *Config) *Client {
	c := openai.DefaultConfig(cfg.Token)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &Client{
		client: openai.NewClientWithConfig(c),
		model:  model,
		debug:  cfg.Debug,
	}
}

// Words transcribes an audio file and returns its words with timestamps.
func (c *Client) Words(ctx context.Context, audio string) ([]lyrics.TimedWord, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: audio,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper: couldn't transcribe %s: %w", audio, err)
	}
	if c.debug {
		log.Printf("whisper: %s transcribed, %d words, %d segments\n", audio, len(resp.Words), len(resp.Segments))
	}

	var words []lyrics.TimedWord
	for _, w := range resp.Words {
		if strings.TrimSpace(w.Word) == "" {
			continue
		}
		words = append(words, lyrics.TimedWord{Word: w.Word, Start: w.Start, End: w.End})
	}
	if len(words) > 0 {
		return words, nil
	}

	// Servers without word granularity only return segments. Each word gets
	// an even share of its segment.
	for _, s := range resp.Segments {
		fields := strings.Fields(s.Text)
		if len(fields) == 0 || s.End < s.Start {
			continue
		}
		step := (s.End - s.Start) / float64(len(fields))
		for i, f := range fields {
			start := s.Start + step*float64(i)
			words = append(words, lyrics.TimedWord{Word: f, Start: start, End: start + step})
		}
	}
	if len(words) == 0 {
		return nil, errors.New("whisper: no words transcribed")
	}
	return words, nil
}
