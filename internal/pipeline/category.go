package pipeline

import (
	"path/filepath"
	"strings"
)

// Categories assigned to files by extension. The query parser maps
// type:/label: operators onto these names.
const (
	CategoryImage    = "image"
	CategoryPDF      = "pdf"
	CategoryDocument = "document"
	CategoryVideo    = "video"
	CategoryAudio    = "audio"
	CategoryCode     = "code"
	CategoryArchive  = "archive"
	CategoryText     = "text"
	CategoryMisc     = "misc"
)

var extensionCategories = map[string]string{
	// Images
	"jpg": CategoryImage, "jpeg": CategoryImage, "png": CategoryImage,
	"gif": CategoryImage, "bmp": CategoryImage, "webp": CategoryImage,
	"heic": CategoryImage, "tiff": CategoryImage, "svg": CategoryImage,

	// PDFs get their own category so type:pdf narrows precisely
	"pdf": CategoryPDF,

	// Documents
	"doc": CategoryDocument, "docx": CategoryDocument,
	"xls": CategoryDocument, "xlsx": CategoryDocument,
	"ppt": CategoryDocument, "pptx": CategoryDocument,
	"odt": CategoryDocument, "rtf": CategoryDocument,

	// Video
	"mp4": CategoryVideo, "mov": CategoryVideo, "avi": CategoryVideo,
	"mkv": CategoryVideo, "webm": CategoryVideo,

	// Audio
	"mp3": CategoryAudio, "wav": CategoryAudio, "flac": CategoryAudio,
	"m4a": CategoryAudio, "ogg": CategoryAudio,

	// Code
	"go": CategoryCode, "py": CategoryCode, "js": CategoryCode,
	"ts": CategoryCode, "java": CategoryCode, "c": CategoryCode,
	"cpp": CategoryCode, "h": CategoryCode, "rs": CategoryCode,
	"rb": CategoryCode, "sh": CategoryCode, "sql": CategoryCode,
	"html": CategoryCode, "css": CategoryCode, "json": CategoryCode,
	"yaml": CategoryCode, "yml": CategoryCode, "toml": CategoryCode,

	// Archives
	"zip": CategoryArchive, "tar": CategoryArchive, "gz": CategoryArchive,
	"rar": CategoryArchive, "7z": CategoryArchive,

	// Plain text
	"txt": CategoryText, "md": CategoryText, "log": CategoryText,
	"csv": CategoryText,
}

// Categorize maps a file name to its category by extension.
func Categorize(name string) string {
	ext := Extension(name)
	if cat, ok := extensionCategories[ext]; ok {
		return cat
	}
	return CategoryMisc
}

// Extension returns the lowercase extension without the dot.
func Extension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return strings.TrimPrefix(ext, ".")
}

// systemFiles are OS artifacts that never belong in the index.
var systemFiles = map[string]bool{
	".DS_Store":       true,
	"Thumbs.db":       true,
	"desktop.ini":     true,
	".localized":      true,
	".Spotlight-V100": true,
}

// SkipFile reports whether a file should be excluded from indexing:
// hidden files, OS system files, and editor/office temp files.
func SkipFile(name string) bool {
	if name == "" {
		return true
	}
	if systemFiles[name] {
		return true
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	// Office lock files and editor swap/temp files
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, "~") {
		return true
	}
	switch Extension(name) {
	case "tmp", "temp", "swp", "swo", "part", "crdownload":
		return true
	}
	return false
}

// SkipDir reports whether a directory subtree should be excluded.
func SkipDir(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	switch name {
	case "node_modules", "__pycache__", "venv", "Trash", "$RECYCLE.BIN", "System Volume Information":
		return true
	}
	return false
}
