package setup

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/ledgerwallet/config"
	"github.com/vadiminshakov/ledgerwallet/internal/strkey"
)

func TestBuild(t *testing.T) {
	a := defaultAnswers()
	a.Seed = "SSECRET"

	cfg, err := Build(a)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.FeeDebounce)
	assert.Equal(t, 15, cfg.MovementsPageSize)
	assert.Empty(t, cfg.Seed, "seed is only stored on request")

	a.StoreSeed = true
	cfg, err = Build(a)
	require.NoError(t, err)
	assert.Equal(t, "SSECRET", cfg.Seed)

	a.PollInterval = "soon"
	_, err = Build(a)
	assert.Error(t, err)
}

func TestWrite_LoadsBack(t *testing.T) {
	seed := strkey.MustEncode(strkey.VersionByteSeed, bytes.Repeat([]byte{1}, 32))
	a := defaultAnswers()
	a.StoreSeed = true
	a.Seed = seed
	a.RateLimit = "2.5"

	path := filepath.Join(t.TempDir(), DefaultFilename)
	require.NoError(t, Write(path, a))

	cfg, err := config.Parse([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, a.APIURL, cfg.APIURL)
	assert.Equal(t, seed, cfg.Seed)
	assert.Equal(t, "2.5", cfg.RateLimit.String())
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateURL("https://api.ledger.example"))
	assert.Error(t, validateURL("api.ledger.example"))

	assert.NoError(t, validateDuration("1s"))
	assert.Error(t, validateDuration("0s"))

	assert.NoError(t, validatePositiveDecimal("0.5"))
	assert.Error(t, validatePositiveDecimal("-1"))

	assert.Error(t, validateSeed("SNOTASEED"))
	assert.NoError(t, validateSeed(strkey.MustEncode(strkey.VersionByteSeed, bytes.Repeat([]byte{2}, 32))))
}
