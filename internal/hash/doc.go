// Package hash provides the checksum used for stored field data.
//
// Checkpoint blobs carry a CRC32-Castagnoli (CRC32C) checksum of their
// uncompressed payload. The polynomial is hardware accelerated on x86
// (SSE4.2) and ARM64 (CRC extension) through hash/crc32.
//
//	sum := hash.CRC32C(payload)
package hash
