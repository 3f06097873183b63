// Package content turns decoded gateway payloads into renderable text and segments.
package content

import (
	"fmt"
	"strings"
)

// directTextFields are checked in priority order when extracting from a map.
var directTextFields = []string{"text", "message", "content", "summary", "delta"}

// ExtractText pulls human-readable text out of an arbitrary decoded payload.
// Strings pass through. Maps are checked for direct text fields in priority
// order, then for a content-block array, then for a nested payloads array.
// Everything else yields "".
func ExtractText(input any) string {
	if s, ok := input.(string); ok {
		return s
	}

	m, ok := input.(map[string]any)
	if !ok {
		return ""
	}

	for _, field := range directTextFields {
		if s, ok := m[field].(string); ok && s != "" {
			return s
		}
	}

	// Content blocks: [{type: "text", text: "..."}]
	if blocks, ok := m["content"].([]any); ok {
		var parts []string
		for _, block := range blocks {
			bm, ok := block.(map[string]any)
			if !ok || bm["type"] != "text" {
				continue
			}
			if s, ok := bm["text"].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}

	if payloads, ok := m["payloads"].([]any); ok {
		var parts []string
		for _, payload := range payloads {
			if s := ExtractText(payload); s != "" {
				parts = append(parts, s)
			}
		}
		if nested := strings.TrimSpace(strings.Join(parts, "\n")); nested != "" {
			return nested
		}
	}

	return ""
}

// ExtractTextWithMedia is like ExtractText but preserves base64 image blocks
// as inline markers of the form <!--INLINE_IMAGE:media_type:base64-->. The
// markers flow through the text pipeline and are split out by ParseContent.
func ExtractTextWithMedia(input any) string {
	if s, ok := input.(string); ok {
		return s
	}

	m, ok := input.(map[string]any)
	if !ok {
		return ""
	}

	// Mixed text + image content blocks.
	if blocks, ok := m["content"].([]any); ok {
		var parts []string
		for _, block := range blocks {
			bm, ok := block.(map[string]any)
			if !ok {
				continue
			}

			switch bm["type"] {
			case "text":
				if s, ok := bm["text"].(string); ok {
					parts = append(parts, s)
				}
			case "image":
				src, ok := bm["source"].(map[string]any)
				if !ok || src["type"] != "base64" {
					continue
				}
				mediaType, mtOK := src["media_type"].(string)
				data, dataOK := src["data"].(string)
				if mtOK && dataOK {
					parts = append(parts, InlineImageMarker(mediaType, data))
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}

	return ExtractText(input)
}

// InlineImageMarker renders a base64 image as an inline marker token.
func InlineImageMarker(mediaType, base64Data string) string {
	return fmt.Sprintf("<!--INLINE_IMAGE:%s:%s-->", mediaType, base64Data)
}
