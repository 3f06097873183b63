package content

import (
	"regexp"
	"strings"
)

// SegmentKind discriminates the renderable segment variants.
type SegmentKind string

// Segment kinds.
const (
	SegmentText        SegmentKind = "text"
	SegmentMedia       SegmentKind = "media"
	SegmentInlineImage SegmentKind = "inline-image"
)

// Segment is one renderable unit parsed from a finished assistant message.
type Segment struct {
	Kind SegmentKind `json:"kind"`

	// Text segments.
	Text string `json:"text,omitempty"`

	// Media segments: a gateway file reference.
	FilePath string `json:"file_path,omitempty"`
	MimeType string `json:"mime_type,omitempty"`

	// Inline image segments: base64 data carried in the message itself.
	MediaType string `json:"media_type,omitempty"`
	Base64    string `json:"base64,omitempty"`
}

var (
	mediaRe       = regexp.MustCompile(`^\s*MEDIA:\s*(\S+)`)
	inlineImageRe = regexp.MustCompile(`^<!--INLINE_IMAGE:([^:]+):(.+)-->$`)

	// Fenced tool_code blocks are stripped entirely, including an
	// unterminated trailing block left by a truncated stream.
	toolCodeRe     = regexp.MustCompile("(?s)```tool_code\n.*?```")
	toolCodeTailRe = regexp.MustCompile("(?s)```tool_code\n.*$")
)

// ParseContent splits a finished message into ordered renderable segments.
// Streaming partial text must not be segmented; an in-flight message may end
// in a truncated marker line.
func ParseContent(raw string) []Segment {
	if raw == "" {
		return nil
	}

	cleaned := toolCodeRe.ReplaceAllString(raw, "")
	cleaned = toolCodeTailRe.ReplaceAllString(cleaned, "")

	var segments []Segment
	var buf []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		if text != "" {
			segments = append(segments, Segment{Kind: SegmentText, Text: text})
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(cleaned, "\n") {
		if m := inlineImageRe.FindStringSubmatch(line); m != nil {
			flush()
			segments = append(segments, Segment{
				Kind:      SegmentInlineImage,
				MediaType: m[1],
				Base64:    m[2],
			})
			continue
		}

		if m := mediaRe.FindStringSubmatch(line); m != nil {
			flush()
			segments = append(segments, Segment{
				Kind:     SegmentMedia,
				FilePath: m[1],
				MimeType: GuessMime(m[1]),
			})
			continue
		}

		buf = append(buf, line)
	}

	flush()
	return segments
}
