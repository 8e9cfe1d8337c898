package executor

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/rules"
)

// Extractor unpacks an export archive into destDir and returns the paths
// of the files it wrote. Named as an interface so tests can substitute a
// double instead of exercising real ZIP I/O.
type Extractor interface {
	Extract(archive []byte, destDir string) ([]string, error)
}

// ZipExtractor is the production Extractor, grounded on antfly-go's
// docsaf/ooxml.go readZipFile pattern (archive/zip.Reader iterating
// zr.File, io.ReadAll per entry).
type ZipExtractor struct{}

// Extract writes every entry in archive under destDir, creating parent
// directories as needed, and returns the written paths.
func (ZipExtractor) Extract(archive []byte, destDir string) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, rules.NewQueryError(rules.KindFilesystem, "opening archive: %v", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, rules.NewQueryError(rules.KindFilesystem, "creating %s: %v", destDir, err)
	}

	var paths []string
	for _, f := range zr.File {
		path := filepath.Join(destDir, filepath.Clean(f.Name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return nil, rules.NewQueryError(rules.KindFilesystem, "creating %s: %v", path, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, rules.NewQueryError(rules.KindFilesystem, "creating %s: %v", filepath.Dir(path), err)
		}

		data, err := readZipEntry(f)
		if err != nil {
			return nil, rules.NewQueryError(rules.KindFilesystem, "reading %s from archive: %v", f.Name, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, rules.NewQueryError(rules.KindFilesystem, "writing %s: %v", path, err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
