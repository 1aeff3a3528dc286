package invoice

import (
	"fmt"
	"os"
	"path/filepath"

	"webshop/internal/usecase"
)

// インボイスPDFをローカルディスクに保存するストア。
// 書き込みは一時ファイルに行い、Commitでrenameして正式名にする。
// 中断されたrenderが invoice-<id>.pdf として見えることはない。
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Path(orderID int64) string {
	return filepath.Join(s.dir, usecase.InvoiceFileName(orderID))
}

func (s *FileStore) CreateStaged(orderID int64) (usecase.StagedInvoice, error) {
	f, err := os.CreateTemp(s.dir, fmt.Sprintf(".invoice-%d-*.tmp", orderID))
	if err != nil {
		return nil, err
	}
	return &stagedFile{f: f, final: s.Path(orderID)}, nil
}

type stagedFile struct {
	f     *os.File
	final string
	done  bool
}

func (s *stagedFile) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

func (s *stagedFile) Commit() error {
	if s.done {
		return nil
	}
	s.done = true

	if err := s.f.Close(); err != nil {
		os.Remove(s.f.Name())
		return err
	}
	if err := os.Rename(s.f.Name(), s.final); err != nil {
		os.Remove(s.f.Name())
		return err
	}
	return nil
}

func (s *stagedFile) Abort() {
	if s.done {
		return
	}
	s.done = true

	s.f.Close()
	os.Remove(s.f.Name())
}
