package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContent_Empty(t *testing.T) {
	assert.Empty(t, ParseContent(""))
}

func TestParseContent_PlainText(t *testing.T) {
	segs := ParseContent("hello\nworld")
	require.Len(t, segs, 1)
	assert.Equal(t, SegmentText, segs[0].Kind)
	assert.Equal(t, "hello\nworld", segs[0].Text)
}

func TestParseContent_MediaThenText(t *testing.T) {
	segs := ParseContent("MEDIA: /a/b.png\nhello")
	require.Len(t, segs, 2)

	assert.Equal(t, SegmentMedia, segs[0].Kind)
	assert.Equal(t, "/a/b.png", segs[0].FilePath)
	assert.Equal(t, "image/png", segs[0].MimeType)

	assert.Equal(t, SegmentText, segs[1].Kind)
	assert.Equal(t, "hello", segs[1].Text)
}

func TestParseContent_TextThenMedia(t *testing.T) {
	segs := ParseContent("here you go\n  MEDIA: /tmp/clip.mp3")
	require.Len(t, segs, 2)
	assert.Equal(t, SegmentText, segs[0].Kind)
	assert.Equal(t, "here you go", segs[0].Text)
	assert.Equal(t, SegmentMedia, segs[1].Kind)
	assert.Equal(t, "/tmp/clip.mp3", segs[1].FilePath)
	assert.Equal(t, "audio/mpeg", segs[1].MimeType)
}

func TestParseContent_InlineImage(t *testing.T) {
	segs := ParseContent("before\n<!--INLINE_IMAGE:image/png:AAAA-->\nafter")
	require.Len(t, segs, 3)
	assert.Equal(t, "before", segs[0].Text)
	assert.Equal(t, SegmentInlineImage, segs[1].Kind)
	assert.Equal(t, "image/png", segs[1].MediaType)
	assert.Equal(t, "AAAA", segs[1].Base64)
	assert.Equal(t, "after", segs[2].Text)
}

func TestParseContent_StripsToolCodeBlocks(t *testing.T) {
	raw := "keep\n```tool_code\nprint(1)\n```\nalso keep"
	segs := ParseContent(raw)
	require.Len(t, segs, 1)
	assert.Equal(t, "keep\n\nalso keep", segs[0].Text)
}

func TestParseContent_StripsUnterminatedToolCode(t *testing.T) {
	raw := "before\n```tool_code\nstill streaming"
	segs := ParseContent(raw)
	require.Len(t, segs, 1)
	assert.Equal(t, "before", segs[0].Text)
}

func TestParseContent_OnlyToolCode(t *testing.T) {
	assert.Empty(t, ParseContent("```tool_code\nx = 1\n```"))
}

func TestParseContent_UnknownExtension(t *testing.T) {
	segs := ParseContent("MEDIA: /data/blob.xyz")
	require.Len(t, segs, 1)
	assert.Equal(t, "application/octet-stream", segs[0].MimeType)
}

func TestGuessMime(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/a/b.png", "image/png"},
		{"/a/b.JPG", "image/jpeg"},
		{"photo.jpeg", "image/jpeg"},
		{"doc.pdf", "application/pdf"},
		{"notes.md", "text/markdown"},
		{"clip.mov", "video/quicktime"},
		{"voice.m4a", "audio/mp4"},
		{"noext", "application/octet-stream"},
		{"weird.zzz", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, GuessMime(tt.path))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, MediaImage, KindOf("image/webp"))
	assert.Equal(t, MediaAudio, KindOf("audio/ogg"))
	assert.Equal(t, MediaVideo, KindOf("video/mp4"))
	assert.Equal(t, MediaDocument, KindOf("application/pdf"))
	assert.Equal(t, MediaDocument, KindOf("text/plain"))
	assert.Equal(t, MediaUnknown, KindOf("application/octet-stream"))
}

func TestFileNameFromPath(t *testing.T) {
	assert.Equal(t, "b.png", FileNameFromPath("/a/b.png"))
	assert.Equal(t, "file", FileNameFromPath("file"))
	assert.Equal(t, "", FileNameFromPath("/trailing/"))
}
