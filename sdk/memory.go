//go:build wasm

package sdk

import (
	"unsafe"

	"github.com/cdm-lang/cdm/wireformat"
)

// allocs pins every buffer handed across the boundary, keyed by its address,
// so the garbage collector cannot move or reclaim it while the host holds
// the pointer.
var allocs = make(map[uint32][]byte)

// Alloc reserves size bytes of guest memory for the host to write into.
// Plugins re-export it as _alloc.
func Alloc(size uint32) uint32 {
	n := size
	if n == 0 {
		n = 1
	}
	buf := make([]byte, n)
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
	allocs[ptr] = buf
	return ptr
}

// Dealloc releases a buffer previously handed to the host. Plugins re-export
// it as _dealloc. The size argument is part of the ABI but unused here; the
// allocation table already knows the buffer.
func Dealloc(ptr, size uint32) {
	delete(allocs, ptr)
}

// readBytes copies size bytes at ptr out of guest memory.
func readBytes(ptr, size uint32) []byte {
	if size == 0 {
		return nil
	}
	if buf, ok := allocs[ptr]; ok && uint32(len(buf)) >= size {
		out := make([]byte, size)
		copy(out, buf[:size])
		return out
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), size)
}

// writeResult frames a payload in the wire format and pins it for the host.
func writeResult(payload []byte) uint32 {
	buf := wireformat.EncodeBuffer(payload)
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
	allocs[ptr] = buf
	return ptr
}

// HandleSchema adapts a schema callback to the _schema export.
func HandleSchema(fn SchemaFunc) uint32 {
	return writeResult(schemaPayload(fn))
}

// HandleValidateConfig adapts a validate callback to the _validate_config
// export.
func HandleValidateConfig(levelPtr, levelLen, configPtr, configLen uint32, fn ValidateFunc) uint32 {
	return writeResult(validatePayload(readBytes(levelPtr, levelLen), readBytes(configPtr, configLen), fn))
}

// HandleBuild adapts a build callback to the _build export.
func HandleBuild(schemaPtr, schemaLen, configPtr, configLen uint32, fn BuildFunc) uint32 {
	return writeResult(buildPayload(readBytes(schemaPtr, schemaLen), readBytes(configPtr, configLen), fn))
}

// HandleMigrate adapts a migrate callback to the _migrate export.
func HandleMigrate(schemaPtr, schemaLen, deltasPtr, deltasLen, configPtr, configLen uint32, fn MigrateFunc) uint32 {
	return writeResult(migratePayload(readBytes(schemaPtr, schemaLen), readBytes(deltasPtr, deltasLen), readBytes(configPtr, configLen), fn))
}
