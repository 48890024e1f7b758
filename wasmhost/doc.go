// Package wasmhost exposes a bridge.Bridge to WebAssembly guests as the
// "opcua" host module.
//
// Guests pass handles as i32 words and receive an i32 status from every
// call. Strings are (ptr, len) pairs in guest memory and must be valid
// UTF-8. Node references take five words: kind, namespace, numeric id,
// text ptr and text len, matching client.NodeRef.
//
// Outputs are written through non-zero guest pointers. Variable-length
// results use a guest slot holding {ptr u32, len u32}; the host grows the
// block with the guest's cabi_realloc export and then updates both words:
//
//	node_info(eng, sess, ref..., slot)          -> UTF-8 text
//	browse(eng, sess, ref..., slot, count_ptr)  -> RecordSize-byte records
//
// Scalars travel as raw bits. read and read_variable store the value at
// its natural width; write and write_variable take an i64 whose low bytes
// hold the value.
//
// Run executes a WASI preview1 command module with the host module linked
// in, which is what the opcua-bridge CLI uses for its wasm subcommand.
package wasmhost
