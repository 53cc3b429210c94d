// Package sdk implements the guest side of the CDM plugin ABI for modules
// compiled with TinyGo. It provides the _alloc/_dealloc allocation table and
// typed adapters that frame results in the length-prefixed wire format.
//
// A plugin wires its callbacks to the fixed export names:
//
//	//export _alloc
//	func alloc(size uint32) uint32 { return sdk.Alloc(size) }
//
//	//export _dealloc
//	func dealloc(ptr, size uint32) { sdk.Dealloc(ptr, size) }
//
//	//export _schema
//	func schema() uint32 {
//		return sdk.HandleSchema(func() string { return "model Audit {}" })
//	}
//
//	//export _validate_config
//	func validateConfig(levelPtr, levelLen, cfgPtr, cfgLen uint32) uint32 {
//		return sdk.HandleValidateConfig(levelPtr, levelLen, cfgPtr, cfgLen, validate)
//	}
//
// Malformed input from the host is absorbed: the adapters answer with an
// empty result payload instead of trapping, so the host never has to tell
// "plugin returned nothing" apart from "plugin could not read its argument".
package sdk
