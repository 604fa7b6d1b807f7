package emit

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Tarball archives the converted directory srcDir into a gzipped tarball at
// trgPath.  Entries are stored relative to the directory root, so the
// archive unpacks into the same layout the importer expects.
func Tarball(srcDir, trgPath string) (err error) {
	out, err := os.Create(trgPath)
	if err != nil {
		return fmt.Errorf("error creating tarball: %w", err)
	}
	defer func() {
		if e := out.Close(); err == nil {
			err = e
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("error archiving %s: %w", srcDir, err)
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
