package fio

import (
	"fmt"
	"os"

	"github.com/ncw/directio"
)

// Alignment is the offset and length alignment required by DirectIO
const Alignment = directio.BlockSize

// DirectIO is an IOManager that bypasses the page cache where the platform
// supports it. Data is staged through an aligned buffer, so callers may pass
// any buffer as long as offsets and lengths are multiples of Alignment.
type DirectIO struct {
	fd      *os.File
	scratch []byte
}

// NewDirectIO opens or creates the file at path for direct I/O
func NewDirectIO(path string) (*DirectIO, error) {
	fd, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &DirectIO{fd: fd}, nil
}

func (dio *DirectIO) aligned(n int) ([]byte, error) {
	if n%Alignment != 0 {
		return nil, fmt.Errorf("direct io: length %d is not a multiple of %d", n, Alignment)
	}
	if len(dio.scratch) < n {
		dio.scratch = directio.AlignedBlock(n)
	}
	return dio.scratch[:n], nil
}

func (dio *DirectIO) ReadAt(buf []byte, offset int64) (int, error) {
	if offset%Alignment != 0 {
		return 0, fmt.Errorf("direct io: offset %d is not aligned", offset)
	}
	block, err := dio.aligned(len(buf))
	if err != nil {
		return 0, err
	}
	n, err := dio.fd.ReadAt(block, offset)
	copy(buf, block[:n])
	return n, err
}

func (dio *DirectIO) WriteAt(data []byte, offset int64) (int, error) {
	if offset%Alignment != 0 {
		return 0, fmt.Errorf("direct io: offset %d is not aligned", offset)
	}
	block, err := dio.aligned(len(data))
	if err != nil {
		return 0, err
	}
	copy(block, data)
	return dio.fd.WriteAt(block, offset)
}

func (dio *DirectIO) Size() (int64, error) {
	st, err := dio.fd.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func (dio *DirectIO) Sync() error {
	return dio.fd.Sync()
}

func (dio *DirectIO) Close() error {
	return dio.fd.Close()
}
