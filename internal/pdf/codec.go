package pdf

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Codec は画像を PDF に埋め込む際のデコード方式です。
type Codec string

const (
	CodecPNG  Codec = "png"
	CodecJPEG Codec = "jpeg"
	CodecGIF  Codec = "gif"
)

// ResolveCodec は Content-Type から埋め込み方式を決めます。
// "png" を含めば PNG、それ以外は JPEG として扱います。
// Content-Type が空または application/octet-stream の場合は中身から判定します。
func ResolveCodec(contentType string, data []byte) Codec {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		ct = mimetype.Detect(data).String()
	}
	switch {
	case strings.Contains(ct, "png"):
		return CodecPNG
	case strings.Contains(ct, "gif"):
		return CodecGIF
	default:
		return CodecJPEG
	}
}
