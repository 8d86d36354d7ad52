//go:build debug_busrt

package blockpool

import (
	"encoding/binary"
	"fmt"
)

// canaryValue is a 4-byte pattern written into the head of every free block. Its
// presence on a block being freed suggests a double free; its absence on a block
// being allocated suggests a write-after-free. Both checks are diagnostic only and
// can false-positive when payload bytes happen to match the pattern, which is why
// detection is confined to the debug_busrt build tag.
const canaryValue uint32 = 0x7C11FA9E

func writeCanary(bytes []byte) {
	binary.LittleEndian.PutUint32(bytes, canaryValue)
}

func clearCanary(bytes []byte) {
	binary.LittleEndian.PutUint32(bytes, 0)
}

func checkCanary(bytes []byte, index int32) {
	if binary.LittleEndian.Uint32(bytes) != canaryValue {
		panic(fmt.Sprintf("block %d was modified while on the free list- possible write-after-free", index))
	}
}

func checkDoubleFree(bytes []byte, index int32) {
	if binary.LittleEndian.Uint32(bytes) == canaryValue {
		panic(fmt.Sprintf("block %d already carries a free-list canary- possible double free", index))
	}
}

// DebugValidate will call Validate on the provided object and panics if any errors
// are returned. This method no-ops unless the debug_busrt build tag is present.
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}
