package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const DefaultExtension = ".txt"

// File is one template source file read from disk.
type File struct {
	Name    string
	Path    string
	Content string
}

// LoadDir reads every regular file in dir whose name ends with ext, sorted by
// file name so runs process templates in a stable order.
func LoadDir(dir, ext string) ([]File, error) {
	if ext == "" {
		ext = DefaultExtension
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template directory: %w", err)
	}

	var files []File
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", entry.Name(), err)
		}
		files = append(files, File{Name: entry.Name(), Path: path, Content: string(data)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
