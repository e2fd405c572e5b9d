package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"sync"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ErrNoImages は画像が1枚も渡されなかった場合に返されます。
var ErrNoImages = errors.New("PDFに変換する画像がありません")

// DecodeError は画像のデコードに失敗したことを表します。
type DecodeError struct {
	Index int
	Codec Codec
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("画像 %d のデコードに失敗しました(%s): %v", e.Index+1, e.Codec, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var disableConfigDir sync.Once

// Assemble は画像1枚につき1ページの PDF を生成します。
// 各ページは画像のピクセルサイズと同じ大きさで、画像をページ全体に描画します。
func Assemble(images []Image) (*Document, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	readers := make([]io.Reader, 0, len(images))
	pages := make([]Page, 0, len(images))
	for i, img := range images {
		codec := ResolveCodec(img.ContentType, img.Data)
		data, cfg, err := prepareImage(codec, img.Data)
		if err != nil {
			return nil, &DecodeError{Index: i, Codec: codec, Err: err}
		}
		readers = append(readers, bytes.NewReader(data))
		pages = append(pages, Page{Width: cfg.Width, Height: cfg.Height, Codec: codec})
	}

	// pos:full ではページサイズが画像サイズになる
	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	var buf bytes.Buffer
	if err := pdfapi.ImportImages(nil, &buf, readers, imp, newConfiguration()); err != nil {
		return nil, fmt.Errorf("PDFの生成に失敗しました: %w", err)
	}

	return &Document{Data: buf.Bytes(), Pages: pages}, nil
}

func prepareImage(codec Codec, data []byte) ([]byte, image.Config, error) {
	switch codec {
	case CodecPNG:
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		return data, cfg, err
	case CodecGIF:
		// GIF はそのまま埋め込めないため PNG に変換する
		img, err := gif.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, image.Config{}, err
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, image.Config{}, err
		}
		b := img.Bounds()
		return buf.Bytes(), image.Config{Width: b.Dx(), Height: b.Dy()}, nil
	default:
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
		return data, cfg, err
	}
}

func newConfiguration() *model.Configuration {
	disableConfigDir.Do(pdfapi.DisableConfigDir)
	return model.NewDefaultConfiguration()
}
