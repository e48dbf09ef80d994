package sft

import (
	"path/filepath"
	"strings"
)

// Category partitions the ingest, archive and symlink trees.
type Category string

const (
	CategoryAudio  Category = "AUDIO"
	CategoryImages Category = "IMAGES"
	CategoryText   Category = "TEXT"
	CategoryBlobs  Category = "BLOBS"
)

// DefaultCategories is the category set used when the config names none.
var DefaultCategories = []Category{CategoryAudio, CategoryImages, CategoryText, CategoryBlobs}

var extensionCategories = map[string]Category{
	".mp3": CategoryAudio, ".wav": CategoryAudio, ".flac": CategoryAudio, ".aac": CategoryAudio,
	".ogg": CategoryAudio, ".m4a": CategoryAudio, ".wma": CategoryAudio,

	".jpg": CategoryImages, ".jpeg": CategoryImages, ".png": CategoryImages, ".gif": CategoryImages,
	".bmp": CategoryImages, ".tiff": CategoryImages, ".svg": CategoryImages, ".webp": CategoryImages,

	".txt": CategoryText, ".md": CategoryText, ".pdf": CategoryText, ".doc": CategoryText,
	".docx": CategoryText, ".rtf": CategoryText, ".odt": CategoryText, ".csv": CategoryText,
	".json": CategoryText, ".xml": CategoryText, ".html": CategoryText, ".css": CategoryText,
	".js": CategoryText, ".py": CategoryText, ".java": CategoryText, ".cpp": CategoryText,
	".c": CategoryText, ".h": CategoryText, ".sql": CategoryText,
}

// Classifier assigns categories to paths. The known set comes from config.
type Classifier struct {
	categories []Category
	known      map[Category]bool
}

// NewClassifier creates a Classifier for the given category names.
// An empty list falls back to DefaultCategories.
func NewClassifier(names []string) *Classifier {
	var cats []Category
	for _, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n != "" {
			cats = append(cats, Category(n))
		}
	}
	if len(cats) == 0 {
		cats = DefaultCategories
	}
	known := make(map[Category]bool, len(cats))
	for _, c := range cats {
		known[c] = true
	}
	return &Classifier{categories: cats, known: known}
}

// Categories returns the configured categories in config order.
func (c *Classifier) Categories() []Category {
	return append([]Category(nil), c.categories...)
}

// Classify returns the category of path: the parent directory name when it
// is a known category, otherwise the category for the file extension.
// Archive paths classify the same way because the archive is partitioned
// by category directory.
func (c *Classifier) Classify(path string) Category {
	parent := Category(filepath.Base(filepath.Dir(path)))
	if c.known[parent] {
		return parent
	}
	return c.ByExtension(path)
}

// ByExtension returns the category for the extension of path. Unknown
// extensions, and categories missing from the configured set, map to BLOBS.
func (c *Classifier) ByExtension(path string) Category {
	cat, ok := extensionCategories[strings.ToLower(filepath.Ext(path))]
	if !ok || !c.known[cat] {
		return CategoryBlobs
	}
	return cat
}
