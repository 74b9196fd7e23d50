// Package config holds the construction-time tunables for the page store.
// There are no environment variables or config files: every value here is a
// default that a caller can override by passing its own parameters to the
// relevant constructor.
package config

import "github.com/ncw/directio"

// PageSize is the fixed size, in bytes, of every page and every frame's
// buffer. It is pinned to the platform's direct-I/O block size so that pages
// stay aligned on the underlying device.
const PageSize = int(directio.BlockSize)

// DefaultPoolSize is the number of frames a buffer Pool holds when the
// caller does not request a specific size.
const DefaultPoolSize = 64

// DefaultReplacerK is the K used by the LRU-K replacer when not overridden.
const DefaultReplacerK = 2

// DefaultHeaderMaxDepth is the number of top hash bits used to route a key to
// one of the hash table's directories. A depth of 0 means a single directory.
const DefaultHeaderMaxDepth = 0

// DefaultDirectoryMaxDepth is the maximum global depth a directory page may
// reach before a split that would require growing further fails.
const DefaultDirectoryMaxDepth = 9

// DefaultBucketMaxEntries bounds how many key/value pairs a bucket page may
// hold before it must split. This is the largest value that still leaves a
// bucket page's header and entry array within one PageSize page at the
// entry encoding pkg/hash uses (20 bytes/entry, 3-byte header); pkg/hash's
// own MaxBucketEntries is the authoritative derivation, kept in sync here
// since config cannot import pkg/hash without a cycle.
const DefaultBucketMaxEntries = 204

// InvalidPageID is the sentinel page identifier meaning "no page".
const InvalidPageID int64 = -1
