// Package wire encodes and decodes the MIT credential cache binary format,
// version 4.
//
// The same encoding is used for ccache files and for the principal and
// credential payloads of KCM requests, so both the DIR and the KCM backends
// share these helpers.
//
// Key characteristics of the format:
//   - Big-endian byte order for all integers
//   - No alignment or padding
//   - Variable-length data is preceded by a 4-byte length
//   - Timestamps are 32-bit seconds since the epoch
//
// Reference: https://web.mit.edu/kerberos/krb5-devel/doc/formats/ccache_file_format.html
package wire

// Version4 is the two-byte file format identifier written at the start of a
// version 4 ccache file.
const Version4 uint16 = 0x0504

// MaxDataLength bounds any single length-prefixed field. Real tickets are a
// few kilobytes; anything beyond this is treated as corruption.
const MaxDataLength = 1024 * 1024 // 1 MB

// MaxCount bounds component, address and authdata counts.
const MaxCount = 1024

// headerTagKDCOffset is the only header tag defined by the format.
const headerTagKDCOffset uint16 = 1
