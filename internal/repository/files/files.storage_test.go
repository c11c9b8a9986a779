package files

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(version string, payload []byte, uploaded time.Time) *models.FirmwareRecord {
	return &models.FirmwareRecord{
		Version:    version,
		DataHex:    hex.EncodeToString(payload),
		FileName:   version + ".bin",
		FileSize:   int64(len(payload)),
		UploadDate: uploaded,
	}
}

func TestFirmwareLifecycle(t *testing.T) {
	ctx := context.Background()
	repo, err := NewFirmwareRepository(FileConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Put(ctx, newRecord("v1.0.0", []byte(":1000\n:2000\n"), now.Add(-time.Hour))))
	require.NoError(t, repo.Put(ctx, newRecord("v1.1.0", []byte(":3000\n"), now)))

	err = repo.Put(ctx, newRecord("v1.0.0", []byte("other"), now))
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	fw, err := repo.Get(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString([]byte(":1000\n:2000\n")), fw.DataHex)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "v1.1.0", list[0].Version)

	n, err := repo.Delete(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.Delete(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = repo.Get(ctx, "v1.0.0")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFirmwareRejectsPathVersions(t *testing.T) {
	repo, err := NewFirmwareRepository(FileConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	_, err = repo.Get(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}
