package mimes

import (
	"path/filepath"
	"strings"
)

const (
	ImageGIF  = "image/gif"
	ImageHEIC = "image/heic"
	ImageJPEG = "image/jpeg"
	ImagePNG  = "image/png"
	ImageWEBP = "image/webp"
	PDF       = "application/pdf"

	// DefaultExtension is used when neither the filename nor the mimetype
	// says what a receipt is. Most receipts are phone photos.
	DefaultExtension = "jpg"

	maxExtensionLen = 6
)

func FromFilename(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.HasSuffix(name, ".jpg"):
		return ImageJPEG
	case strings.HasSuffix(name, ".jpeg"):
		return ImageJPEG
	case strings.HasSuffix(name, ".png"):
		return ImagePNG
	case strings.HasSuffix(name, ".webp"):
		return ImageWEBP
	case strings.HasSuffix(name, ".heic"):
		return ImageHEIC
	case strings.HasSuffix(name, ".gif"):
		return ImageGIF
	case strings.HasSuffix(name, ".pdf"):
		return PDF
	default:
		return ""
	}
}

// FileExtension returns the extension, without the dot, for a receipt
// mimetype. Unknown types return "".
func FileExtension(mimetype string) string {
	switch strings.ToLower(mimetype) {
	case ImageJPEG, "image/jpg", "image/pjpeg":
		return "jpg"
	case ImagePNG:
		return "png"
	case ImageWEBP:
		return "webp"
	case ImageHEIC, "image/heif":
		return "heic"
	case ImageGIF:
		return "gif"
	case PDF:
		return "pdf"
	default:
		return ""
	}
}

// ReceiptExtension picks the extension used for a receipt's remote key.
// A filename suffix of up to 6 characters wins, then the mimetype, then
// DefaultExtension.
func ReceiptExtension(filename, mimetype string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext != "" && len(ext) <= maxExtensionLen {
		return strings.ToLower(ext)
	}

	if ext := FileExtension(mimetype); ext != "" {
		return ext
	}

	return DefaultExtension
}

// Accepted reports whether mimetype is in accepted. An empty list accepts
// everything.
func Accepted(accepted []string, mimetype string) bool {
	if len(accepted) == 0 {
		return true
	}
	for _, mime := range accepted {
		if strings.EqualFold(mimetype, mime) {
			return true
		}
	}
	return false
}
