//go:build !debug_busrt

package blockpool

func writeCanary(bytes []byte) {
}

func clearCanary(bytes []byte) {
}

func checkCanary(bytes []byte, index int32) {
}

func checkDoubleFree(bytes []byte, index int32) {
}

// DebugValidate will call Validate on the provided object and panics if any errors
// are returned. This method no-ops unless the debug_busrt build tag is present.
func DebugValidate(validatable Validatable) {
}
