package suno

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
)

var (
	// ErrQuota is returned when the account has no credits left.
	ErrQuota = errors.New("suno: quota exhausted")
	// ErrNoData is returned when the API answers successfully but without
	// data, which happens when a resource isn't available yet.
	ErrNoData = errors.New("suno: no data")
)

const DefaultModel = "V4_5"

type GenerateRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	NegativeTags string `json:"negativeTags,omitempty"`
	CallBackURL  string `json:"callBackUrl"`
}

type taskResponse struct {
	TaskID string `json:"taskId"`
}

// Generate starts a music generation job and returns its task id.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	r := *req
	if r.Model == "" {
		r.Model = DefaultModel
	}
	if r.CallBackURL == "" {
		r.CallBackURL = c.callback
	}
	if r.Style != "" || r.Title != "" {
		r.CustomMode = true
	}
	var resp taskResponse
	if err := c.do(ctx, "POST", "generate", &r, &resp); err != nil {
		return "", fmt.Errorf("suno: couldn't generate: %w", err)
	}
	if resp.TaskID == "" {
		return "", errors.New("suno: empty task id")
	}
	return resp.TaskID, nil
}

// Clip is a generated song.
type Clip struct {
	ID             string  `json:"id"`
	AudioURL       string  `json:"audioUrl"`
	SourceAudioURL string  `json:"sourceAudioUrl"`
	StreamAudioURL string  `json:"streamAudioUrl"`
	ImageURL       string  `json:"imageUrl"`
	SourceImageURL string  `json:"sourceImageUrl"`
	Prompt         string  `json:"prompt"`
	ModelName      string  `json:"modelName"`
	Title          string  `json:"title"`
	Tags           string  `json:"tags"`
	Duration       float64 `json:"duration"`
}

// Audio returns the best available audio URL.
func (c Clip) Audio() string {
	for _, u := range []string{c.SourceAudioURL, c.AudioURL, c.StreamAudioURL} {
		if u != "" {
			return u
		}
	}
	return ""
}

// Image returns the best available cover URL.
func (c Clip) Image() string {
	if c.SourceImageURL != "" {
		return c.SourceImageURL
	}
	return c.ImageURL
}

type Record struct {
	TaskID   string `json:"taskId"`
	Status   string `json:"status"`
	Response struct {
		SunoData []Clip `json:"sunoData"`
	} `json:"response"`
	ErrorMessage string `json:"errorMessage"`
}

const statusSuccess = "SUCCESS"

var failedStatus = map[string]bool{
	"CREATE_TASK_FAILED":    true,
	"GENERATE_AUDIO_FAILED": true,
	"CALLBACK_EXCEPTION":    true,
	"SENSITIVE_WORD_ERROR":  true,
}

func (c *Client) Record(ctx context.Context, taskID string) (*Record, error) {
	var rec Record
	path := fmt.Sprintf("generate/record-info?taskId=%s", url.QueryEscape(taskID))
	if err := c.do(ctx, "GET", path, nil, &rec); err != nil {
		return nil, fmt.Errorf("suno: couldn't get record %s: %w", taskID, err)
	}
	return &rec, nil
}

// Wait polls the generation job until it finishes.
func (c *Client) Wait(ctx context.Context, taskID string) (*Record, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		rec, err := c.Record(ctx, taskID)
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr):
			return nil, err
		case err != nil:
			c.log("suno: couldn't get status of %s: %v", taskID, err)
		case rec.Status == statusSuccess:
			if len(rec.Response.SunoData) == 0 {
				return nil, fmt.Errorf("suno: task %s finished without clips", taskID)
			}
			return rec, nil
		case failedStatus[rec.Status]:
			return nil, fmt.Errorf("suno: task %s failed (%s): %s", taskID, rec.Status, rec.ErrorMessage)
		default:
			c.log("suno: task %s status %s", taskID, rec.Status)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Credits returns the remaining credits of the account.
func (c *Client) Credits(ctx context.Context) (float64, error) {
	var credits float64
	if err := c.do(ctx, "GET", "generate/credit", nil, &credits); err != nil {
		return 0, fmt.Errorf("suno: couldn't get credits: %w", err)
	}
	return credits, nil
}

type timestampedRequest struct {
	TaskID     string `json:"taskId"`
	AudioID    string `json:"audioId"`
	MusicIndex int    `json:"musicIndex"`
}

type alignedWord struct {
	Word    string  `json:"word"`
	Success bool    `json:"success"`
	StartS  float64 `json:"startS"`
	EndS    float64 `json:"endS"`
	PAlign  float64 `json:"palign"`
}

type timestampedResponse struct {
	AlignedWords []alignedWord `json:"alignedWords"`
	HootCer      float64       `json:"hootCer"`
	IsStreamed   bool          `json:"isStreamed"`
}

// TimestampedLyrics returns the word level timing of a generated song.
// Words that couldn't be aligned are dropped.
func (c *Client) TimestampedLyrics(ctx context.Context, taskID, audioID string, index int) ([]lyrics.TimedWord, error) {
	var resp timestampedResponse
	req := &timestampedRequest{TaskID: taskID, AudioID: audioID, MusicIndex: index}
	if err := c.do(ctx, "POST", "generate/get-timestamped-lyrics", req, &resp); err != nil {
		return nil, fmt.Errorf("suno: couldn't get timestamped lyrics of %s: %w", audioID, err)
	}
	var words []lyrics.TimedWord
	for _, w := range resp.AlignedWords {
		if !w.Success || strings.TrimSpace(w.Word) == "" {
			continue
		}
		words = append(words, lyrics.TimedWord{
			Word:  lyrics.Repair(w.Word),
			Start: w.StartS,
			End:   w.EndS,
		})
	}
	return words, nil
}

type videoRequest struct {
	TaskID      string `json:"taskId"`
	AudioID     string `json:"audioId"`
	CallBackURL string `json:"callBackUrl"`
	Author      string `json:"author,omitempty"`
	Domain      string `json:"domainName,omitempty"`
}

// GenerateVideo starts a provider side music video job.
func (c *Client) GenerateVideo(ctx context.Context, taskID, audioID, author string) (string, error) {
	req := &videoRequest{
		TaskID:      taskID,
		AudioID:     audioID,
		CallBackURL: c.callback,
		Author:      author,
	}
	var resp taskResponse
	if err := c.do(ctx, "POST", "mp4/generate", req, &resp); err != nil {
		return "", fmt.Errorf("suno: couldn't generate video: %w", err)
	}
	if resp.TaskID == "" {
		return "", errors.New("suno: empty video task id")
	}
	return resp.TaskID, nil
}

type VideoRecord struct {
	TaskID      string `json:"taskId"`
	MusicID     string `json:"musicId"`
	SuccessFlag string `json:"successFlag"`
	Response    struct {
		VideoURL string `json:"videoUrl"`
	} `json:"response"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// WaitVideo polls the video job until it finishes and returns the video URL.
func (c *Client) WaitVideo(ctx context.Context, taskID string) (string, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		var rec VideoRecord
		path := fmt.Sprintf("mp4/record-info?taskId=%s", url.QueryEscape(taskID))
		err := c.do(ctx, "GET", path, nil, &rec)
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr):
			return "", fmt.Errorf("suno: couldn't get video record %s: %w", taskID, err)
		case err != nil:
			c.log("suno: couldn't get video status of %s: %v", taskID, err)
		case rec.SuccessFlag == statusSuccess && rec.Response.VideoURL != "":
			return rec.Response.VideoURL, nil
		case strings.HasSuffix(rec.SuccessFlag, "FAILED"):
			return "", fmt.Errorf("suno: video task %s failed (%s): %s", taskID, rec.SuccessFlag, rec.ErrorMessage)
		default:
			c.log("suno: video task %s status %s", taskID, rec.SuccessFlag)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// Download saves the resource at u to output. Data is written to a temporary
// file that is renamed once the download completes.
func (c *Client) Download(ctx context.Context, u, output string) error {
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return fmt.Errorf("suno: couldn't create output dir: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("suno: couldn't create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("suno: couldn't download %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("suno: couldn't download %s: %w", u, &StatusError{Code: resp.StatusCode})
	}

	tmp := fmt.Sprintf("%s.tmp%s", output, filepath.Ext(output))
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("suno: couldn't create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("suno: couldn't write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("suno: couldn't close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, output); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("suno: couldn't rename temporary file: %w", err)
	}
	return nil
}
