package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"VoiceGate/service/storage"
	"VoiceGate/service/storage/storagetest"

	"github.com/stretchr/testify/require"
)

// Runs against a real server only when VOICEGATE_TEST_POSTGRES_DSN is set.
func TestDirectory(t *testing.T) {
	dsn := os.Getenv("VOICEGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOICEGATE_TEST_POSTGRES_DSN not set")
	}

	storagetest.RunDirectorySuite(t, func(t *testing.T) storage.Directory {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		d, err := NewDirectory(ctx, dsn)
		require.NoError(t, err)
		_, err = d.pool.Exec(ctx, `TRUNCATE users`)
		require.NoError(t, err)
		t.Cleanup(func() { _ = d.Close() })
		return d
	})
}
