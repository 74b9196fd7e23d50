// Package hash implements a disk-resident extendible hash index on top of
// the buffer pool: a header page routes a key's hash to one of several
// directory pages, each of which routes to a bucket page holding the actual
// key/value entries.
//
// Page ids are persisted as 4-byte signed integers (matching the classic
// bustub on-disk format) even though the buffer pool's in-memory page id
// type is a wider int64; this bounds a header/directory/bucket's footprint
// well inside one page and still leaves billions of pages of address space.
package hash

import (
	"encoding/binary"

	"pagestore/pkg/config"
	"pagestore/pkg/entry"
)

const invalidID int64 = config.InvalidPageID

const headerHeaderSize = 1 // maxDepthH byte
const dirIDSize = 4        // on-disk page id width

// headerSlots is the number of directory-id slots a header page with the
// given maxDepthH holds.
func headerSlots(maxDepthH int) int {
	return 1 << uint(maxDepthH)
}

func headerDirOffset(slot int) int {
	return headerHeaderSize + slot*dirIDSize
}

func headerMaxDepth(buf []byte) int {
	return int(buf[0])
}

func setHeaderMaxDepth(buf []byte, depth int) {
	buf[0] = byte(depth)
}

func headerDirID(buf []byte, slot int) int64 {
	return int64(int32(binary.LittleEndian.Uint32(buf[headerDirOffset(slot):])))
}

func setHeaderDirID(buf []byte, slot int, id int64) {
	binary.LittleEndian.PutUint32(buf[headerDirOffset(slot):], uint32(int32(id)))
}

// initHeader lays out a freshly allocated header page: maxDepthH, and every
// directory slot set to invalidID.
func initHeader(buf []byte, maxDepthH int) {
	setHeaderMaxDepth(buf, maxDepthH)
	for i := 0; i < headerSlots(maxDepthH); i++ {
		setHeaderDirID(buf, i, invalidID)
	}
}

const dirHeaderSize = 2 // maxDepthD byte + globalDepth byte

func dirSlots(maxDepthD int) int {
	return 1 << uint(maxDepthD)
}

func dirLocalDepthOffset(slot int) int {
	return dirHeaderSize + slot
}

func dirBucketIDOffset(maxDepthD, slot int) int {
	return dirHeaderSize + dirSlots(maxDepthD) + slot*dirIDSize
}

func dirMaxDepth(buf []byte) int {
	return int(buf[0])
}

func setDirMaxDepth(buf []byte, depth int) {
	buf[0] = byte(depth)
}

func dirGlobalDepth(buf []byte) int {
	return int(buf[1])
}

func setDirGlobalDepth(buf []byte, depth int) {
	buf[1] = byte(depth)
}

func dirLocalDepth(buf []byte, slot int) int {
	return int(buf[dirLocalDepthOffset(slot)])
}

func setDirLocalDepth(buf []byte, slot int, depth int) {
	buf[dirLocalDepthOffset(slot)] = byte(depth)
}

func dirBucketID(buf []byte, maxDepthD, slot int) int64 {
	off := dirBucketIDOffset(maxDepthD, slot)
	return int64(int32(binary.LittleEndian.Uint32(buf[off:])))
}

func setDirBucketID(buf []byte, maxDepthD, slot int, id int64) {
	off := dirBucketIDOffset(maxDepthD, slot)
	binary.LittleEndian.PutUint32(buf[off:], uint32(int32(id)))
}

// initDirectory lays out a freshly allocated directory page: maxDepthD,
// global depth 0, every slot's local depth 0 and bucket id invalidID.
func initDirectory(buf []byte, maxDepthD int) {
	setDirMaxDepth(buf, maxDepthD)
	setDirGlobalDepth(buf, 0)
	for i := 0; i < dirSlots(maxDepthD); i++ {
		setDirLocalDepth(buf, i, 0)
		setDirBucketID(buf, maxDepthD, i, invalidID)
	}
}

// growDirectory doubles the active directory range by copying every slot's
// local depth and bucket id into the slot one oldSize above it. Callers
// then bump the global depth themselves.
func growDirectory(buf []byte, maxDepthD int, oldGlobalDepth int) {
	oldSize := dirSlots(oldGlobalDepth)
	for i := 0; i < oldSize; i++ {
		ld := dirLocalDepth(buf, i)
		bid := dirBucketID(buf, maxDepthD, i)
		setDirLocalDepth(buf, i+oldSize, ld)
		setDirBucketID(buf, maxDepthD, i+oldSize, bid)
	}
}

const bucketHeaderSize = 3 // localDepth byte + 2-byte size
const entrySize = binary.MaxVarintLen64 * 2

// MaxBucketEntries is the largest bucket capacity that fits a single page's
// entry array alongside its header; the hash table's construction-time
// bucket size parameter is capped at this value.
const MaxBucketEntries = (config.PageSize - bucketHeaderSize) / entrySize

func bucketEntryOffset(i int) int {
	return bucketHeaderSize + i*entrySize
}

func bucketLocalDepth(buf []byte) int {
	return int(buf[0])
}

func setBucketLocalDepth(buf []byte, depth int) {
	buf[0] = byte(depth)
}

func bucketSize(buf []byte) int {
	return int(binary.LittleEndian.Uint16(buf[1:3]))
}

func setBucketSize(buf []byte, n int) {
	binary.LittleEndian.PutUint16(buf[1:3], uint16(n))
}

func bucketEntryAt(buf []byte, i int) entry.Entry {
	off := bucketEntryOffset(i)
	return entry.UnmarshalEntry(buf[off : off+entrySize])
}

func setBucketEntryAt(buf []byte, i int, e entry.Entry) {
	off := bucketEntryOffset(i)
	copy(buf[off:off+entrySize], e.Marshal())
}

// initBucket lays out a freshly allocated bucket page: the given local
// depth and zero entries.
func initBucket(buf []byte, localDepth int) {
	setBucketLocalDepth(buf, localDepth)
	setBucketSize(buf, 0)
}
