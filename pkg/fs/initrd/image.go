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

package initrd

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"vkern.dev/pkg/vfs"
)

// recordNameLen bounds a record's name field in the on-disk image,
// per spec.md §3's "name (bounded)".
const recordNameLen = 60

// FileSpec is one entry a caller hands to Encode when building a boot
// image: a path inside the filesystem, its type/mode, and its
// content (empty for directories).
type FileSpec struct {
	Name    string
	IsDir   bool
	Mode    vfs.FileMode
	UID     int
	GID     int
	Content []byte
}

// Encode serializes files into the boot-image format spec.md §6
// describes: a 32-bit file count, followed by fixed-size records,
// followed by the concatenated content bytes each record's Offset
// addresses.
func Encode(files []FileSpec) ([]byte, error) {
	var header bytes.Buffer
	if err := binary.Write(&header, binary.LittleEndian, uint32(len(files))); err != nil {
		return nil, err
	}

	var content bytes.Buffer
	var records bytes.Buffer
	for i, f := range files {
		if len(f.Name) > recordNameLen {
			return nil, fmt.Errorf("initrd: name %q exceeds %d bytes", f.Name, recordNameLen)
		}
		typ := uint8(typeRegular)
		length := int64(len(f.Content))
		offset := int64(content.Len())
		if f.IsDir {
			typ = uint8(typeDirectory)
			length = 0
			offset = 0
		} else {
			content.Write(f.Content)
		}

		var nameBuf [recordNameLen]byte
		copy(nameBuf[:], f.Name)

		rec := onDiskRecord{
			Ino:    uint64(i + 1),
			Name:   nameBuf,
			Type:   typ,
			Mask:   uint32(f.Mode),
			UID:    uint32(f.UID),
			GID:    uint32(f.GID),
			Offset: offset,
			Length: length,
		}
		if err := binary.Write(&records, binary.LittleEndian, rec); err != nil {
			return nil, err
		}
	}

	out := append(header.Bytes(), records.Bytes()...)
	out = append(out, content.Bytes()...)
	return out, nil
}

// onDiskRecord is the fixed-size per-file record spec.md §3 describes
// as "Initrd file": magic is implicit (this struct only ever appears
// inside a well-formed image), inode, bounded name, type, mask,
// uid/gid, and the offset/length addressing the content region.
// Timestamps are tracked in the in-memory record, not persisted here.
type onDiskRecord struct {
	Ino    uint64
	Name   [recordNameLen]byte
	Type   uint8
	_      [7]byte // alignment padding, mirrors the struct's 8-byte stride
	Mask   uint32
	UID    uint32
	GID    uint32
	Offset int64
	Length int64
}

const onDiskRecordSize = 8 + recordNameLen + 1 + 7 + 4 + 4 + 4 + 8 + 8

// decode parses a boot image into its header count, its records, and
// the content region the records' offsets index into.
func decode(image []byte) ([]onDiskRecord, []byte, error) {
	if len(image) < 4 {
		return nil, nil, fmt.Errorf("initrd: image too small for header")
	}
	count := binary.LittleEndian.Uint32(image[:4])
	pos := 4

	recs := make([]onDiskRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+onDiskRecordSize > len(image) {
			return nil, nil, fmt.Errorf("initrd: image truncated at record %d", i)
		}
		var rec onDiskRecord
		r := bytes.NewReader(image[pos : pos+onDiskRecordSize])
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, nil, err
		}
		recs = append(recs, rec)
		pos += onDiskRecordSize
	}
	return recs, image[pos:], nil
}

func nameFromBuf(buf [recordNameLen]byte) string {
	n := bytes.IndexByte(buf[:], 0)
	if n < 0 {
		n = len(buf)
	}
	return string(buf[:n])
}
