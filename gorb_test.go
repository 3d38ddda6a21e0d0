package gorb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gorb/config"
	"github.com/evdnx/gorb/notify"
	"github.com/evdnx/gorb/options"
	"github.com/evdnx/gorb/testutils"
	"github.com/evdnx/gorb/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Journal.Path = filepath.Join(t.TempDir(), "trades", "trades.csv")
	cfg.Server.Enabled = false
	return cfg
}

func TestNewWiresPaperSession(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notify.WebhookURL = "http://127.0.0.1:1/hook"
	log := testutils.NewMockLogger()

	a, err := New(cfg, log, "test")
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Feed)
	assert.Nil(t, a.Server)
	assert.NotNil(t, a.Session)
	assert.Equal(t, cfg.Execution.InitialCash, a.Exec.Cash())
	_, isWebhook := a.Notifier.(*notify.Webhook)
	assert.True(t, isWebhook)
	assert.True(t, log.Has("warn", "no_feed_configured"))
	assert.True(t, log.Has("info", "app_configured"))
	assert.FileExists(t, cfg.Journal.Path)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Options.StrikeStep = 0
	_, err := New(cfg, nil, "test")
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Execution.Paper = false
	cfg.Feed.URL = "ws://127.0.0.1:1/feed"
	_, err = New(cfg, nil, "test")
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Feed.URL = "ws://127.0.0.1:1/feed"
	cfg.Server.Enabled = true
	cfg.Server.Addr = "127.0.0.1:0"

	a, err := New(cfg, nil, "test")
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Feed)
	require.NotNil(t, a.Server)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestContractResolverFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`contracts:
  - instrument_key: "NSE_FO|99001"
    trading_symbol: "NIFTY 24850 CE"
    strike: 24850
    type: CE
    expiry: "2099-01-06"
  - instrument_key: "NSE_FO|99002"
    trading_symbol: "NIFTY 24850 PE"
    strike: 24850
    type: PE
    expiry: "2099-01-06"
`), 0o644))

	cfg := testConfig(t)
	cfg.Options.ContractsFile = path
	r, err := contractResolver(cfg, time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	book, ok := r.(*options.Book)
	require.True(t, ok)
	assert.Equal(t, "2099-01-06", book.Expiry())

	c, err := r.Resolve(24850, types.Put)
	require.NoError(t, err)
	assert.Equal(t, "NSE_FO|99002", c.InstrumentKey)

	cfg.Options.ContractsFile = ""
	r, err = contractResolver(cfg, time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	c, err = r.Resolve(24850, types.Call)
	require.NoError(t, err)
	assert.Equal(t, "NIFTY25030424850CE", c.InstrumentKey)
}

func TestLoadSettingsPropagatesErrors(t *testing.T) {
	st, err := loadSettings(testConfig(t))
	require.NoError(t, err)
	assert.NotNil(t, st.loc)
	assert.NotNil(t, st.policy)

	cases := map[string]func(*config.Config){
		"timezone":    func(c *config.Config) { c.Instrument.Timezone = "Mars/Olympus" },
		"risk policy": func(c *config.Config) { c.Risk.Mode = "kelly" },
	}
	for want, mutate := range cases {
		cfg := testConfig(t)
		mutate(cfg)
		_, err := loadSettings(cfg)
		require.Error(t, err, want)
		assert.Contains(t, err.Error(), want)
	}
}
