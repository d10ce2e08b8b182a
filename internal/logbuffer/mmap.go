package logbuffer

import (
	"fmt"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

// MappedFile is a memory-mapped log buffer file: three term partitions
// followed by the metadata region (spec.md §3 "Log buffer", §6 "Client↔driver
// transport").
type MappedFile struct {
	path string
	data []byte
	file *os.File

	terms    [PartitionCount][]byte
	metadata *Metadata
}

// CreateLogFile creates (or truncates) and maps a new log buffer file of
// the given term length at path. Only the Conductor calls this: it is the
// sole owner and creator of log buffers (spec.md §5 "Cancellation",
// §9 "Shared mutable state").
func CreateLogFile(path string, termLength int32) (*MappedFile, error) {
	if termLength <= 0 || termLength&(termLength-1) != 0 {
		return nil, fmt.Errorf("logbuffer: term length %d is not a positive power of two", termLength)
	}

	totalLength := int64(termLength)*PartitionCount + MetadataLength

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logbuffer: failed to create %q: %w", path, err)
	}

	if err := file.Truncate(totalLength); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("logbuffer: failed to size %q: %w", path, err)
	}

	mf, err := mapFile(path, file, totalLength, termLength)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}

	mf.metadata.SetTermLength(termLength)
	mf.metadata.SetPageSize(int32(unix.Getpagesize()))
	mf.metadata.StoreEndOfStreamPositionRelease(math.MaxInt64)

	return mf, nil
}

// OpenLogFile maps an existing log buffer file at path, e.g. for a
// subscriber client attaching to an image.
func OpenLogFile(path string) (*MappedFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("logbuffer: failed to open %q: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("logbuffer: failed to stat %q: %w", path, err)
	}

	totalLength := info.Size()
	if totalLength <= MetadataLength {
		file.Close()
		return nil, fmt.Errorf("logbuffer: %q is too small to be a log buffer (%d bytes)", path, totalLength)
	}
	termLength := int32((totalLength - MetadataLength) / PartitionCount)

	return mapFile(path, file, totalLength, termLength)
}

func mapFile(path string, file *os.File, totalLength int64, termLength int32) (*MappedFile, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, int(totalLength), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("logbuffer: mmap %q: %w", path, err)
	}

	mf := &MappedFile{path: path, data: data, file: file}
	for i := 0; i < PartitionCount; i++ {
		start := int32(i) * termLength
		mf.terms[i] = data[start : start+termLength]
	}

	metadata, err := NewMetadata(data[int64(termLength)*PartitionCount:])
	if err != nil {
		unix.Munmap(data)
		return nil, err
	}
	mf.metadata = metadata

	return mf, nil
}

// Term returns the backing bytes for the given partition index (spec.md §3
// "term id mod 3").
func (mf *MappedFile) Term(partitionIndex int) []byte {
	return mf.terms[partitionIndex]
}

// Metadata returns the log buffer's metadata accessor.
func (mf *MappedFile) Metadata() *Metadata {
	return mf.metadata
}

// Path returns the filesystem path this log buffer was mapped from.
func (mf *MappedFile) Path() string {
	return mf.path
}

// Close unmaps and closes the underlying file. It does not remove the file
// from disk; callers that own the log buffer's lifetime (the Conductor)
// must remove it explicitly once linger has elapsed.
func (mf *MappedFile) Close() error {
	if err := unix.Munmap(mf.data); err != nil {
		return fmt.Errorf("logbuffer: munmap %q: %w", mf.path, err)
	}
	return mf.file.Close()
}
