// Package pdf は楽譜画像から PDF を組み立てます。
package pdf

// Page は生成した PDF の1ページ分の情報です（サイズは元画像のピクセル数）。
type Page struct {
	Width  int   `json:"width"`
	Height int   `json:"height"`
	Codec  Codec `json:"codec"`
}

// Image はダウンロード済みの楽譜画像です。
type Image struct {
	Data        []byte
	ContentType string
}

// Document は組み立て済みの PDF です。
type Document struct {
	Data  []byte
	Pages []Page
}

// PageCount はページ数を返します。
func (d *Document) PageCount() int {
	if d == nil {
		return 0
	}
	return len(d.Pages)
}
