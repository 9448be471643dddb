package domain

import "strings"

// AssetKind enumerates the delivered asset containers.
type AssetKind string

const (
	AssetKindPNG AssetKind = "png"
	AssetKindJPG AssetKind = "jpg"
	AssetKindMP4 AssetKind = "mp4"
)

// AssetKindFromContentType classifies a downloaded asset by its Content-Type
// header: anything mentioning video is mp4, jpeg is jpg, the rest is png.
func AssetKindFromContentType(contentType string) AssetKind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "video"):
		return AssetKindMP4
	case strings.Contains(ct, "jpeg"):
		return AssetKindJPG
	default:
		return AssetKindPNG
	}
}

// MIME returns the canonical MIME type.
func (k AssetKind) MIME() string {
	switch k {
	case AssetKindMP4:
		return "video/mp4"
	case AssetKindJPG:
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// Ext returns the file extension including the dot.
func (k AssetKind) Ext() string {
	switch k {
	case AssetKindMP4:
		return ".mp4"
	case AssetKindJPG:
		return ".jpg"
	default:
		return ".png"
	}
}

func (k AssetKind) IsVideo() bool {
	return k == AssetKindMP4
}

// Asset is a downloaded generation result.
type Asset struct {
	Kind      AssetKind
	Data      []byte
	SourceURL string
}
