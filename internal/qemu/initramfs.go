// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cavaliergopher/cpio"
)

const numLinks = 2

// ErrNotRegular is returned if a file expected to be regular is not.
var ErrNotRegular = errors.New("not a regular file")

// ReadLinkFS is a [fs.FS] with an additional method for reading the target of
// a symbolic link.
//
// Replace with [fs.ReadLinkFS] once the minimum Go version is 1.25.
type ReadLinkFS interface {
	fs.FS

	ReadLink(name string) (string, error)
}

type dirFS struct {
	fs.FS
	root string
}

// DirFS returns a [ReadLinkFS] for the directory tree rooted at dir.
func DirFS(dir string) ReadLinkFS {
	return &dirFS{
		FS:   os.DirFS(dir),
		root: dir,
	}
}

// ReadLink implements [ReadLinkFS].
func (fsys *dirFS) ReadLink(name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: fs.ErrInvalid}
	}

	return os.Readlink(filepath.Join(fsys.root, filepath.FromSlash(name))) //nolint:wrapcheck
}

// CPIOWriter writes newc cpio archives for the Linux initramfs.
type CPIOWriter struct {
	cpioWriter *cpio.Writer
}

// NewCPIOWriter creates a new archive writer.
func NewCPIOWriter(w io.Writer) *CPIOWriter {
	return &CPIOWriter{cpio.NewWriter(w)}
}

// Close writes the archive trailer. Flush is called by the underlying closer.
func (w *CPIOWriter) Close() error {
	err := w.cpioWriter.Close()
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}

	return nil
}

func (w *CPIOWriter) writeHeader(hdr *cpio.Header) error {
	err := w.cpioWriter.WriteHeader(hdr)
	if err != nil {
		return fmt.Errorf("write header for %s: %w", hdr.Name, err)
	}

	return nil
}

// WriteDirectory adds a directory entry for the given path.
func (w *CPIOWriter) WriteDirectory(path string, perm fs.FileMode) error {
	return w.writeHeader(&cpio.Header{
		Name:  path,
		Mode:  cpio.TypeDir | cpio.FileMode(perm.Perm()),
		Links: numLinks,
	})
}

// WriteLink adds a symbolic link for the given path pointing to the given
// target.
func (w *CPIOWriter) WriteLink(path, target string) error {
	err := w.writeHeader(&cpio.Header{
		Name: path,
		Mode: cpio.TypeSymlink | cpio.ModePerm,
		Size: int64(len(target)),
	})
	if err != nil {
		return err
	}

	// Body of a link is the path of the target file.
	_, err = w.cpioWriter.Write([]byte(target))
	if err != nil {
		return fmt.Errorf("write body for %s: %w", path, err)
	}

	return nil
}

// WriteRegular copies the existing file from source into the archive.
func (w *CPIOWriter) WriteRegular(path string, source fs.File) error {
	info, err := source.Stat()
	if err != nil {
		return fmt.Errorf("read info: %w", err)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegular, path)
	}

	hdr, err := cpio.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("create header: %w", err)
	}

	hdr.Name = path

	err = w.writeHeader(hdr)
	if err != nil {
		return err
	}

	_, err = io.Copy(w.cpioWriter, source)
	if err != nil {
		return fmt.Errorf("write body for %s: %w", path, err)
	}

	return nil
}

// WriteFS adds the whole file tree of fsys to the archive. Symbolic links
// are only added if fsys implements [ReadLinkFS]. Other special files are
// skipped.
func (w *CPIOWriter) WriteFS(fsys fs.FS) error {
	rlFS, canReadLink := fsys.(ReadLinkFS)

	return fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path == "." {
			return nil
		}

		switch entry.Type() {
		case fs.ModeDir:
			info, err := entry.Info()
			if err != nil {
				return fmt.Errorf("read info: %w", err)
			}

			return w.WriteDirectory(path, info.Mode())
		case fs.ModeSymlink:
			if !canReadLink {
				return nil
			}

			target, err := rlFS.ReadLink(path)
			if err != nil {
				return fmt.Errorf("read link: %w", err)
			}

			return w.WriteLink(path, target)
		case 0:
			return w.writeRegularFrom(fsys, path)
		default:
			return nil
		}
	})
}

func (w *CPIOWriter) writeRegularFrom(fsys fs.FS, path string) error {
	file, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	return w.WriteRegular(path, file)
}

// WriteInitramfs writes the file tree of fsys as complete newc cpio archive
// to w.
func WriteInitramfs(w io.Writer, fsys fs.FS) error {
	archive := NewCPIOWriter(w)

	err := archive.WriteFS(fsys)
	if err != nil {
		return err
	}

	return archive.Close()
}
