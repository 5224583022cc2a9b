// internal/service/output_file.go
package service

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
)

// OutputFile is the append-only destination of a capture
type OutputFile interface {
	io.Writer
	// Flush pushes written bytes out of any user-space buffer
	Flush() error
	Close() error
}

// fileOutput writes through a buffer that is flushed after every write
type fileOutput struct {
	file   *os.File
	writer *bufio.Writer
	fsync  bool
}

// OpenOutputFile opens path for appending, creating it if needed
func OpenOutputFile(path string, bufferSize int, fsync bool) (OutputFile, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file %s: %w", path, err)
	}

	return &fileOutput{
		file:   file,
		writer: bufio.NewWriterSize(file, bufferSize),
		fsync:  fsync,
	}, nil
}

func (f *fileOutput) Write(p []byte) (int, error) {
	return f.writer.Write(p)
}

func (f *fileOutput) Flush() error {
	if err := f.writer.Flush(); err != nil {
		return err
	}
	if f.fsync {
		return f.file.Sync()
	}
	return nil
}

func (f *fileOutput) Close() error {
	return multierr.Append(f.Flush(), f.file.Close())
}
