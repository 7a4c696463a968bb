// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu_test

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/aibor/emuctl/internal/qemu"
	"github.com/cavaliergopher/cpio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type archiveEntry struct {
	mode     cpio.FileMode
	body     string
	linkname string
}

func readArchive(t *testing.T, archive io.Reader) map[string]archiveEntry {
	t.Helper()

	entries := map[string]archiveEntry{}
	reader := cpio.NewReader(archive)

	for {
		hdr, err := reader.Next()
		if err == io.EOF {
			break
		}

		require.NoError(t, err)

		body, err := io.ReadAll(reader)
		require.NoError(t, err)

		entries[hdr.Name] = archiveEntry{
			mode:     hdr.Mode,
			body:     string(body),
			linkname: hdr.Linkname,
		}
	}

	return entries
}

func TestCPIOWriter_WriteRegularInvalid(t *testing.T) {
	testFS := fstest.MapFS{
		"dir": &fstest.MapFile{Mode: fs.ModeDir},
	}

	file, err := testFS.Open("dir")
	require.NoError(t, err)

	var archive bytes.Buffer

	err = qemu.NewCPIOWriter(&archive).WriteRegular("dir", file)
	require.ErrorIs(t, err, qemu.ErrNotRegular)
}

func TestWriteInitramfs_MapFS(t *testing.T) {
	testFS := fstest.MapFS{
		"bin":           &fstest.MapFile{Mode: fs.ModeDir | 0o755},
		"bin/sh":        &fstest.MapFile{Data: []byte("#!shell"), Mode: 0o755},
		"etc/hostname":  &fstest.MapFile{Data: []byte("localhost\n"), Mode: 0o644},
		"dev/ttyS0":     &fstest.MapFile{Mode: fs.ModeDevice | fs.ModeCharDevice},
		"root/.profile": &fstest.MapFile{Data: []byte("PS1='# '\n"), Mode: 0o600},
	}

	var archive bytes.Buffer

	require.NoError(t, qemu.WriteInitramfs(&archive, testFS))

	entries := readArchive(t, &archive)

	assert.Equal(t, archiveEntry{mode: cpio.TypeDir | 0o755}, entries["bin"])
	assert.Equal(t, archiveEntry{mode: cpio.TypeReg | 0o755, body: "#!shell"}, entries["bin/sh"])
	assert.Equal(t, "localhost\n", entries["etc/hostname"].body)
	assert.Equal(t, cpio.FileMode(cpio.TypeDir), entries["etc"].mode&cpio.TypeDir)
	assert.Equal(t, "PS1='# '\n", entries["root/.profile"].body)
	assert.NotContains(t, entries, "dev/ttyS0", "special files are skipped")
}

func TestWriteInitramfs_DirFS(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "busybox"), []byte("elf"), 0o755))
	require.NoError(t, os.Symlink("busybox", filepath.Join(dir, "bin", "sh")))

	var archive bytes.Buffer

	require.NoError(t, qemu.WriteInitramfs(&archive, qemu.DirFS(dir)))

	entries := readArchive(t, &archive)

	require.Contains(t, entries, "bin/sh")
	assert.Equal(t, cpio.FileMode(cpio.TypeSymlink|cpio.ModePerm), entries["bin/sh"].mode)
	assert.Equal(t, "busybox", entries["bin/sh"].linkname)
	assert.Equal(t, "elf", entries["bin/busybox"].body)
}
