/*
Copyright 2026 The Vkern Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package boot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"vkern.dev/pkg/fs/initrd"
	"vkern.dev/pkg/vfs"
)

func writeConfig(t *testing.T, dir, imagePath string) string {
	t.Helper()
	cfgPath := filepath.Join(dir, "boot.json")
	contents := fmt.Sprintf(`{
		"mounts": {
			"/": {"type": "initrd", "device": %q},
			"/proc": {"type": "procfs"}
		}
	}`, imagePath)
	if err := os.WriteFile(cfgPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile config: %v", err)
	}
	return cfgPath
}

func writeImage(t *testing.T, dir string) string {
	t.Helper()
	image, err := initrd.Encode([]initrd.FileSpec{
		{Name: "/hello", Mode: 0o644, Content: []byte("hi")},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	imgPath := filepath.Join(dir, "boot.img")
	if err := os.WriteFile(imgPath, image, 0o644); err != nil {
		t.Fatalf("WriteFile image: %v", err)
	}
	return imgPath
}

func TestRunMountsInitrdAndProcfsFromConfig(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeImage(t, dir)
	cfgPath := writeConfig(t, dir, imgPath)

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	s := New()
	if err := s.Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := s.V.GetSuperblock("/hello"); !ok {
		t.Fatalf("no superblock resolves /hello after boot")
	}
	if sb, ok := s.V.GetSuperblock("/proc/version"); !ok || sb.MountPath != "/proc" {
		t.Fatalf("/proc not mounted as expected: sb=%+v ok=%v", sb, ok)
	}

	task := bootTestTask{}
	fdt := newBootTestFDTable()
	fd, err := s.V.Open(task, fdt, "/hello", vfs.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("Open /hello: %v", err)
	}
	buf := make([]byte, 2)
	n, err := s.V.Read(fdt, fd, buf)
	if err != nil {
		t.Fatalf("Read /hello: %v", err)
	}
	if string(buf[:n]) != "hi" {
		t.Fatalf("Read /hello: got %q, want %q", buf[:n], "hi")
	}
}

func TestRunRejectsUnknownFilesystemType(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "boot.json")
	if err := os.WriteFile(cfgPath, []byte(`{"mounts": {"/": {"type": "nonsense"}}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	s := New()
	if err := s.Run(context.Background(), cfg); err == nil {
		t.Fatalf("Run: want error for unknown filesystem type, got nil")
	}
}

func TestRunRejectsMissingMountsKey(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "boot.json")
	if err := os.WriteFile(cfgPath, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	s := New()
	if err := s.Run(context.Background(), cfg); err == nil {
		t.Fatalf("Run: want error for missing \"mounts\" key, got nil")
	}
}

type bootTestTask struct{}

func (bootTestTask) PID() int    { return 0 }
func (bootTestTask) UID() int    { return 0 }
func (bootTestTask) GID() int    { return 0 }
func (bootTestTask) Cwd() string { return "/" }

type bootTestFDTable struct {
	slots []*vfs.File
	flags []int
}

func newBootTestFDTable() *bootTestFDTable {
	return &bootTestFDTable{slots: make([]*vfs.File, 8), flags: make([]int, 8)}
}

func (f *bootTestFDTable) Get(fd int) (*vfs.File, int, bool) {
	if fd < 0 || fd >= len(f.slots) || f.slots[fd] == nil {
		return nil, 0, false
	}
	return f.slots[fd], f.flags[fd], true
}

func (f *bootTestFDTable) Install(h *vfs.File, flags int) (int, error) {
	for i, s := range f.slots {
		if s == nil {
			f.slots[i] = h
			f.flags[i] = flags
			return i, nil
		}
	}
	return -1, vfs.ErrTooManyOpen
}

func (f *bootTestFDTable) Free(fd int) error {
	if fd < 0 || fd >= len(f.slots) || f.slots[fd] == nil {
		return vfs.ErrBadFd
	}
	f.slots[fd] = nil
	return nil
}
