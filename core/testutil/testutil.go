// Package testutil builds Quake II asset fixtures and in-memory test doubles.
package testutil

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/opencontainers/go-digest"
)

// PakFile is one file to place in a fixture archive.
type PakFile struct {
	Name string
	Data []byte
}

// BuildPak returns a PAK archive containing files in order.
// File content follows the header and the directory is written last.
func BuildPak(files ...PakFile) []byte {
	var data bytes.Buffer
	data.Write(make([]byte, 12))

	type record struct {
		name           string
		offset, length int
	}
	records := make([]record, 0, len(files))
	for _, f := range files {
		records = append(records, record{name: f.Name, offset: data.Len(), length: len(f.Data)})
		data.Write(f.Data)
	}

	dirOffset := data.Len()
	for _, r := range records {
		var name [56]byte
		copy(name[:55], r.name)
		data.Write(name[:])
		writeInt32(&data, r.offset)
		writeInt32(&data, r.length)
	}

	out := data.Bytes()
	copy(out[0:4], "PACK")
	binary.LittleEndian.PutUint32(out[4:8], uint32(dirOffset))        //nolint:gosec // fixture sizes are small
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(records)*64)) //nolint:gosec // fixture sizes are small
	return out
}

// PakHeader returns a bare PAK header with the given directory offset and
// length, for building malformed fixtures.
func PakHeader(magic string, dirOffset, dirLength int32) []byte {
	out := make([]byte, 12)
	copy(out[0:4], magic)
	binary.LittleEndian.PutUint32(out[4:8], uint32(dirOffset))  //nolint:gosec // intentional bit pattern
	binary.LittleEndian.PutUint32(out[8:12], uint32(dirLength)) //nolint:gosec // intentional bit pattern
	return out
}

// BSP lump layout used by BuildBSP.
const (
	bspLumps       = 19
	bspHeaderSize  = 8 + bspLumps*8
	bspTexinfoSize = 76
)

// BuildBSP returns a version 38 IBSP map whose entity lump holds entities
// verbatim and whose texinfo lump references textures in order.
// All other lumps are empty.
func BuildBSP(entities string, textures ...string) []byte {
	entData := append([]byte(entities), 0)

	var texData bytes.Buffer
	for _, tex := range textures {
		rec := make([]byte, bspTexinfoSize)
		copy(rec[40:71], tex)
		texData.Write(rec)
	}

	out := make([]byte, bspHeaderSize, bspHeaderSize+len(entData)+texData.Len())
	copy(out[0:4], "IBSP")
	binary.LittleEndian.PutUint32(out[4:8], 38)

	entOffset := bspHeaderSize
	texOffset := entOffset + len(entData)
	putLump(out, 0, entOffset, len(entData))
	putLump(out, 5, texOffset, texData.Len())

	out = append(out, entData...)
	out = append(out, texData.Bytes()...)
	return out
}

func putLump(header []byte, lump, offset, length int) {
	base := 8 + lump*8
	binary.LittleEndian.PutUint32(header[base:], uint32(offset))   //nolint:gosec // fixture sizes are small
	binary.LittleEndian.PutUint32(header[base+4:], uint32(length)) //nolint:gosec // fixture sizes are small
}

// BuildMD2 returns a version 8 IDP2 model carrying only skin names.
func BuildMD2(skins ...string) []byte {
	const headerSize = 68
	var buf bytes.Buffer
	header := make([]int32, 17)
	copy(header, []int32{0, 8, 256, 256, 0, int32(len(skins))}) //nolint:gosec // fixture sizes are small
	skinsOffset := int32(headerSize)
	end := skinsOffset + int32(len(skins)*64) //nolint:gosec // fixture sizes are small
	for i := 11; i <= 16; i++ {
		header[i] = end
	}
	header[11] = skinsOffset

	buf.WriteString("IDP2")
	for _, v := range header[1:] {
		writeInt32(&buf, int(v))
	}
	for _, skin := range skins {
		var name [64]byte
		copy(name[:63], skin)
		buf.Write(name[:])
	}
	return buf.Bytes()
}

// BuildMD3 returns a version 15 IDP3 model with one surface per element of
// surfaces, each listing the given shader names.
func BuildMD3(surfaces ...[]string) []byte {
	const (
		headerSize  = 108
		surfaceSize = 108
		shaderSize  = 68
	)

	var body bytes.Buffer
	for i, shaders := range surfaces {
		surfEnd := surfaceSize + len(shaders)*shaderSize
		surf := make([]byte, surfaceSize)
		copy(surf[0:4], "IDP3")
		copy(surf[4:67], "surface"+string(rune('a'+i)))
		binary.LittleEndian.PutUint32(surf[76:], uint32(len(shaders))) //nolint:gosec // fixture sizes are small
		binary.LittleEndian.PutUint32(surf[92:], surfaceSize)
		binary.LittleEndian.PutUint32(surf[104:], uint32(surfEnd)) //nolint:gosec // fixture sizes are small
		body.Write(surf)
		for j, shader := range shaders {
			rec := make([]byte, shaderSize)
			copy(rec[:63], shader)
			binary.LittleEndian.PutUint32(rec[64:], uint32(j)) //nolint:gosec // fixture sizes are small
			body.Write(rec)
		}
	}

	header := make([]byte, headerSize)
	copy(header[0:4], "IDP3")
	binary.LittleEndian.PutUint32(header[4:], 15)
	copy(header[8:71], "fixture")
	binary.LittleEndian.PutUint32(header[84:], uint32(len(surfaces))) //nolint:gosec // fixture sizes are small
	binary.LittleEndian.PutUint32(header[92:], headerSize)
	binary.LittleEndian.PutUint32(header[96:], headerSize)
	binary.LittleEndian.PutUint32(header[100:], headerSize)
	binary.LittleEndian.PutUint32(header[104:], uint32(headerSize+body.Len())) //nolint:gosec // fixture sizes are small
	return append(header, body.Bytes()...)
}

// BuildPCX returns an 8-bit PCX image of the given size filled with color
// index 1, followed by a 256 entry palette where entry i is (i, i, i).
func BuildPCX(width, height int) []byte {
	header := make([]byte, 128)
	header[0] = 0x0A
	header[1] = 5
	header[2] = 1
	header[3] = 8
	binary.LittleEndian.PutUint16(header[8:], uint16(width-1))   //nolint:gosec // fixture sizes are small
	binary.LittleEndian.PutUint16(header[10:], uint16(height-1)) //nolint:gosec // fixture sizes are small
	header[65] = 1
	binary.LittleEndian.PutUint16(header[66:], uint16(width)) //nolint:gosec // fixture sizes are small

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(bytes.Repeat([]byte{1}, width*height))
	buf.WriteByte(0x0C)
	for i := range 256 {
		buf.Write([]byte{byte(i), byte(i), byte(i)})
	}
	return buf.Bytes()
}

func writeInt32(buf *bytes.Buffer, v int) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v)) //nolint:gosec // fixture sizes are small
	buf.Write(b[:])
}

// MockCache implements cache.Cache in memory for tests.
type MockCache struct {
	mu   sync.RWMutex
	data map[digest.Digest][]byte
	max  int64
	puts int
}

// NewMockCache constructs an empty in-memory cache.
func NewMockCache() *MockCache {
	return &MockCache{data: make(map[digest.Digest][]byte)}
}

// Get returns a copy of the cached snapshot.
func (c *MockCache) Get(key digest.Digest) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.data[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(data), true
}

// Put stores a copy of data.
func (c *MockCache) Put(key digest.Digest, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.data[key] = bytes.Clone(data)
	return nil
}

// Delete removes cached content for key.
func (c *MockCache) Delete(key digest.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *MockCache) MaxBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.max
}

// SizeBytes returns the current cache size in bytes.
func (c *MockCache) SizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, data := range c.data {
		total += int64(len(data))
	}
	return total
}

// Prune removes cached entries until the cache is at or below targetBytes.
func (c *MockCache) Prune(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, data := range c.data {
		total += int64(len(data))
	}
	var freed int64
	for key, data := range c.data {
		if total <= targetBytes {
			break
		}
		delete(c.data, key)
		total -= int64(len(data))
		freed += int64(len(data))
	}
	return freed, nil
}

// Len returns the number of cached snapshots.
func (c *MockCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Puts returns how many times Put was called.
func (c *MockCache) Puts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.puts
}

// Keys returns the keys of every cached snapshot.
func (c *MockCache) Keys() []digest.Digest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]digest.Digest, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}
