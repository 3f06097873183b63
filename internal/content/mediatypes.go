package content

import (
	"path/filepath"
	"strings"
)

// MediaKind is a coarse classification used by renderers.
type MediaKind string

// Media kinds.
const (
	MediaImage    MediaKind = "image"
	MediaAudio    MediaKind = "audio"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaUnknown  MediaKind = "unknown"
)

// mimeByExt maps lowercase file extensions to MIME types.
var mimeByExt = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"heic": "image/heic",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"opus": "audio/opus",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"md":   "text/markdown",
	"json": "application/json",
	"csv":  "text/csv",
}

// GuessMime guesses a MIME type from a file path's extension.
// Unknown extensions default to application/octet-stream.
func GuessMime(filePath string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	if mime, ok := mimeByExt[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// KindOf classifies a MIME type for rendering purposes.
func KindOf(mime string) MediaKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MediaImage
	case strings.HasPrefix(mime, "audio/"):
		return MediaAudio
	case strings.HasPrefix(mime, "video/"):
		return MediaVideo
	case mime == "application/pdf" || strings.HasPrefix(mime, "text/"):
		return MediaDocument
	default:
		return MediaUnknown
	}
}

// FileNameFromPath returns the last path element of a gateway file path.
// Gateway paths always use forward slashes.
func FileNameFromPath(filePath string) string {
	if i := strings.LastIndex(filePath, "/"); i >= 0 {
		return filePath[i+1:]
	}
	return filePath
}
