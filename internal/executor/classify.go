package executor

import (
	"bytes"
	"unicode/utf8"
)

// FileKind is the classification a read dispatches on.
type FileKind int

const (
	FileText FileKind = iota
	FilePDF
	FileImage
	FileUnsupported
)

func (k FileKind) String() string {
	switch k {
	case FileText:
		return "text"
	case FilePDF:
		return "pdf"
	case FileImage:
		return "image"
	default:
		return "unsupported"
	}
}

// Classifier determines a file's kind from its content. The read handler
// only consumes the classification; sniffing details stay behind this
// interface.
type Classifier interface {
	Classify(path string, head []byte) (FileKind, string)
}

// ContentClassifier classifies by magic bytes with a UTF-8 fallback for text.
type ContentClassifier struct{}

var imageMagics = []struct {
	magic []byte
	mime  string
}{
	{[]byte("\x89PNG\r\n\x1a\n"), "image/png"},
	{[]byte("\xff\xd8\xff"), "image/jpeg"},
	{[]byte("GIF87a"), "image/gif"},
	{[]byte("GIF89a"), "image/gif"},
	{[]byte("BM"), "image/bmp"},
}

// Classify inspects the first bytes of the file. The second return value is
// the MIME type for images, empty otherwise.
func (ContentClassifier) Classify(path string, head []byte) (FileKind, string) {
	if bytes.HasPrefix(head, []byte("%PDF")) {
		return FilePDF, ""
	}
	for _, m := range imageMagics {
		if bytes.HasPrefix(head, m.magic) {
			return FileImage, m.mime
		}
	}
	// RIFF....WEBP
	if len(head) >= 12 && bytes.HasPrefix(head, []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")) {
		return FileImage, "image/webp"
	}
	if looksLikeText(head) {
		return FileText, ""
	}
	return FileUnsupported, ""
}

// looksLikeText accepts valid UTF-8 without NUL bytes. A truncated multibyte
// rune at the end of the sample is tolerated.
func looksLikeText(head []byte) bool {
	if len(head) == 0 {
		return true
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	for len(head) > 0 {
		r, size := utf8.DecodeRune(head)
		if r == utf8.RuneError && size == 1 {
			return len(head) < utf8.UTFMax
		}
		head = head[size:]
	}
	return true
}
