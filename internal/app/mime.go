package app

import (
	"log/slog"
	"mime"
)

// siteAssetTypes pins the content types of the static site so responses do
// not depend on the host's mime.types file.
var siteAssetTypes = map[string]string{
	".css":   "text/css; charset=utf-8",
	".js":    "text/javascript; charset=utf-8",
	".json":  "application/json",
	".svg":   "image/svg+xml",
	".webp":  "image/webp",
	".ico":   "image/x-icon",
	".woff2": "font/woff2",
}

func init() {
	for ext, typ := range siteAssetTypes {
		if mime.TypeByExtension(ext) != "" {
			continue
		}
		if err := mime.AddExtensionType(ext, typ); err != nil {
			slog.Warn("register content type", slog.String("ext", ext), slog.Any("error", err))
		}
	}
}
