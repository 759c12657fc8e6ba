package browser

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRodLaunchFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	drv, err := OpenRod(ctx, Options{BrowserPath: filepath.Join(t.TempDir(), "no-such-chromium")})
	require.Error(t, err)
	assert.Nil(t, drv)
	assert.Contains(t, err.Error(), "could not launch browser")
	assert.Less(t, time.Since(start), 5*time.Second, "a process that never started must not be waited on")
}
