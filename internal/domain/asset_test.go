package domain

import "testing"

func TestAssetKindFromContentType(t *testing.T) {
	cases := []struct {
		contentType string
		want        AssetKind
	}{
		{"video/mp4", AssetKindMP4},
		{"Video/QuickTime", AssetKindMP4},
		{"image/jpeg", AssetKindJPG},
		{"image/JPEG; charset=binary", AssetKindJPG},
		{"image/png", AssetKindPNG},
		{"image/webp", AssetKindPNG},
		{"", AssetKindPNG},
	}
	for _, tc := range cases {
		if got := AssetKindFromContentType(tc.contentType); got != tc.want {
			t.Fatalf("AssetKindFromContentType(%q) = %q, want %q", tc.contentType, got, tc.want)
		}
	}
}

func TestAssetKindMetadata(t *testing.T) {
	if AssetKindMP4.MIME() != "video/mp4" || AssetKindMP4.Ext() != ".mp4" || !AssetKindMP4.IsVideo() {
		t.Fatalf("unexpected mp4 metadata")
	}
	if AssetKindJPG.MIME() != "image/jpeg" || AssetKindJPG.Ext() != ".jpg" || AssetKindJPG.IsVideo() {
		t.Fatalf("unexpected jpg metadata")
	}
	if AssetKindPNG.MIME() != "image/png" || AssetKindPNG.Ext() != ".png" {
		t.Fatalf("unexpected png metadata")
	}
}
