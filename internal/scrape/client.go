// Package scrape は人人钢琴网（everyonepiano）の歌曲ページと楽譜ページを解析します。
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrBodyTooLarge はレスポンスが上限サイズを超えた場合に返されます。
var ErrBodyTooLarge = errors.New("レスポンスが上限サイズを超えています")

// FetchError は外部サイトへのリクエスト失敗を表します。
// StatusCode が 0 の場合はネットワーク層での失敗です。
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("リクエストに失敗しました(%d)：%s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("リクエストに失敗しました：%s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Payload は取得したレスポンス本文と Content-Type です。
type Payload struct {
	Data        []byte
	ContentType string
}

// Options は Client の設定です。
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	Transport    http.RoundTripper
}

// Client はブラウザ相当の User-Agent を付与して外部ページを取得します。
type Client struct {
	http      *http.Client
	userAgent string
	maxBytes  int64
}

// NewClient は Client を生成します。Timeout が 0 以下の場合は 30 秒を使います。
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: opts.Transport,
		},
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBodyBytes,
	}
}

// FetchText は URL の本文を文字列として取得します。
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	payload, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(payload.Data), nil
}

// FetchBytes は URL の本文をバイト列として取得します。
func (c *Client) FetchBytes(ctx context.Context, url string) (*Payload, error) {
	return c.get(ctx, url)
}

func (c *Client) get(ctx context.Context, url string) (*Payload, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64*1024))
		return nil, &FetchError{URL: url, StatusCode: res.StatusCode}
	}

	var body io.Reader = res.Body
	if c.maxBytes > 0 {
		body = io.LimitReader(res.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, &FetchError{URL: url, Err: ErrBodyTooLarge}
	}

	return &Payload{
		Data:        data,
		ContentType: res.Header.Get("Content-Type"),
	}, nil
}
