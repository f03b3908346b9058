package contentstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/sakif/photo-wall/internal/apperror"
)

const defaultTelegramAPIBase = "https://api.telegram.org"

// TelegramConfig points a TelegramStore at a bot and the chat it posts to.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	APIBase  string // defaults to https://api.telegram.org
}

// TelegramStore keeps photos in a Telegram chat via the Bot API.
//
// Put posts the photo with sendPhoto. Telegram answers with the same image
// at several sizes; the reference is the file_id of the largest.
// Resolve asks getFile for a download path and streams that file back.
type TelegramStore struct {
	cfg    TelegramConfig
	client *http.Client
}

// NewTelegramStore creates a TelegramStore. nil client means http.DefaultClient.
func NewTelegramStore(cfg TelegramConfig, client *http.Client) *TelegramStore {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultTelegramAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if client == nil {
		client = http.DefaultClient
	}
	return &TelegramStore{cfg: cfg, client: client}
}

// botResponse is the envelope every Bot API method answers with.
type botResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

type photoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size"`
}

type sentMessage struct {
	Photo []photoSize `json:"photo"`
}

type botFile struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size"`
	FilePath string `json:"file_path"`
}

func (s *TelegramStore) methodURL(method string) string {
	return s.cfg.APIBase + "/bot" + s.cfg.BotToken + "/" + method
}

// Put streams obj to sendPhoto as multipart/form-data without buffering it.
func (s *TelegramStore) Put(ctx context.Context, obj Object) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := s.writeSendPhoto(mw, obj)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.methodURL("sendPhoto"), pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("contentstore: building sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("contentstore: sendPhoto: %w", err)
	}
	defer resp.Body.Close()

	var out botResponse[sentMessage]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("contentstore: decoding sendPhoto response (status %d): %w", resp.StatusCode, err)
	}
	if !out.OK {
		return "", fmt.Errorf("contentstore: sendPhoto failed: %d %s", out.ErrorCode, out.Description)
	}
	if len(out.Result.Photo) == 0 {
		return "", fmt.Errorf("contentstore: sendPhoto returned no photo sizes")
	}

	return out.Result.Photo[len(out.Result.Photo)-1].FileID, nil
}

func (s *TelegramStore) writeSendPhoto(mw *multipart.Writer, obj Object) error {
	if err := mw.WriteField("chat_id", s.cfg.ChatID); err != nil {
		return err
	}
	if obj.Caption != "" {
		if err := mw.WriteField("caption", obj.Caption); err != nil {
			return err
		}
	}

	filename := obj.Filename
	if filename == "" {
		filename = "photo.jpg"
	}
	part, err := mw.CreateFormFile("photo", filename)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, obj.Body)
	return err
}

// Resolve looks ref up with getFile and opens the file download.
func (s *TelegramStore) Resolve(ctx context.Context, ref string) (*Content, error) {
	f, err := s.getFile(ctx, ref)
	if err != nil {
		return nil, err
	}

	fileURL := s.cfg.APIBase + "/file/bot" + s.cfg.BotToken + "/" + f.FilePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("contentstore: building download request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contentstore: downloading %s: %w", ref, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, apperror.NotFound("content", ref)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("contentstore: downloading %s: status %d", ref, resp.StatusCode)
	}

	return &Content{
		Body:        resp.Body,
		ContentType: contentTypeFor(resp.Header.Get("Content-Type"), f.FilePath),
		Size:        resp.ContentLength,
	}, nil
}

func (s *TelegramStore) getFile(ctx context.Context, ref string) (*botFile, error) {
	u := s.methodURL("getFile") + "?file_id=" + url.QueryEscape(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("contentstore: building getFile request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contentstore: getFile: %w", err)
	}
	defer resp.Body.Close()

	var out botResponse[botFile]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("contentstore: decoding getFile response (status %d): %w", resp.StatusCode, err)
	}
	if !out.OK {
		// The Bot API answers an unknown or malformed file_id with 400.
		if out.ErrorCode == http.StatusBadRequest {
			return nil, apperror.NotFound("content", ref)
		}
		return nil, fmt.Errorf("contentstore: getFile failed: %d %s", out.ErrorCode, out.Description)
	}
	if out.Result.FilePath == "" {
		return nil, fmt.Errorf("contentstore: getFile returned no file_path for %s", ref)
	}
	return &out.Result, nil
}

// contentTypeFor prefers a specific upstream Content-Type and falls back to
// the file extension. Telegram usually serves application/octet-stream.
func contentTypeFor(header, filePath string) string {
	if header != "" && !strings.HasPrefix(header, "application/octet-stream") {
		return header
	}
	if ct := mime.TypeByExtension(path.Ext(filePath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

var _ Store = (*TelegramStore)(nil)
