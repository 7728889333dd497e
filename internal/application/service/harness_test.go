package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/garyjia/vendor-portal/internal/application/port"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
	"github.com/garyjia/vendor-portal/internal/infrastructure/persistence/repository"
	"github.com/garyjia/vendor-portal/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/vendor-portal/pkg/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// memStorage keeps blobs in memory keyed by "<supplier>/<file>".
type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

func (m *memStorage) Save(ctx context.Context, supplierName, fileName string, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	path := supplierName + "/" + fileName
	for i := 1; ; i++ {
		if _, taken := m.files[path]; !taken {
			break
		}
		path = fmt.Sprintf("%s/%d_%s", supplierName, i, fileName)
	}
	m.files[path] = data
	return path, int64(len(data)), nil
}

func (m *memStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	data, err := m.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Read(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m *memStorage) Exists(ctx context.Context, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *memStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memStorage) GetFullPath(relativePath string) string {
	return filepath.Join("/mem", relativePath)
}

func (m *memStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

type repos struct {
	tx          port.TransactionManager
	suppliers   port.SupplierRepository
	approvers   port.ApproverRepository
	approvals   port.ApprovalRepository
	attachments port.AttachmentRepository
	history     port.HistoryRepository
	gst         port.GSTRepository
}

func newRepos(t *testing.T) *repos {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "service.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrator(db, zap.NewNop()).RunEmbedded())

	logger := zap.NewNop()
	return &repos{
		tx:          sqlite.NewDB(db.DB, logger),
		suppliers:   repository.NewSupplierRepository(db.DB, logger),
		approvers:   repository.NewApproverRepository(db.DB, logger),
		approvals:   repository.NewApprovalRepository(db.DB, logger),
		attachments: repository.NewAttachmentRepository(db.DB, logger),
		history:     repository.NewHistoryRepository(db.DB, logger),
		gst:         repository.NewGSTRepository(db.DB, logger),
	}
}

func (r *repos) addApprover(t *testing.T, level int, country string) {
	t.Helper()
	require.NoError(t, r.approvers.Create(context.Background(), &entity.Approver{
		Level:   level,
		Country: country,
		Name:    fmt.Sprintf("Approver %d", level),
		Email:   fmt.Sprintf("approver%d.%s@example.com", level, country),
	}))
}

func (r *repos) addSupplier(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, r.suppliers.Create(context.Background(), &entity.Supplier{
		Name:        name,
		MainAddress: entity.Address{City: "Pune", Country: "IN"},
	}))
}
