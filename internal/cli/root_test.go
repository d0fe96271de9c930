package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/barter-backend/internal/app"
	"github.com/ignatzorin/barter-backend/internal/config"
	"github.com/ignatzorin/barter-backend/internal/logger"
	"github.com/ignatzorin/barter-backend/internal/service"
)

const testSecret = "cli-test-secret-0123456789abcdef0123"

func testConfig() *config.Config {
	return &config.Config{
		Env:            "test",
		StorageDriver:  config.StorageDriverMemory,
		JWTSecret:      testSecret,
		AccessTokenTTL: time.Hour,
		Swap: config.SwapConfig{
			CodeAttemptLimit:  5,
			CodeAttemptPeriod: time.Minute,
			CodeHashCost:      4,
		},
		MultiSwap: config.MultiSwapConfig{TTL: time.Hour},
	}
}

// sharedMemoryOptions возвращает опции, у которых все команды работают
// с одним in-memory приложением.
func sharedMemoryOptions(t *testing.T) *RootOptions {
	t.Helper()
	logger.Silence()
	cfg := testConfig()
	shared, err := app.New(context.Background(), cfg, app.Options{})
	require.NoError(t, err)

	return &RootOptions{
		LoadConfig: func() (*config.Config, error) { return cfg, nil },
		NewApp: func(context.Context, *config.Config, app.Options) (*app.App, error) {
			return shared, nil
		},
	}
}

func run(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "swapctl", cmd.Use)

	for _, name := range []string{"migrate", "sweep", "opportunities", "product", "ledger", "token"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, sharedMemoryOptions(t), "sweep", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestTokenIssue(t *testing.T) {
	opts := sharedMemoryOptions(t)
	userID := uuid.New()

	out, err := run(t, opts, "token", "issue", "--user", userID.String(), "--role", "admin", "--format", "json")
	require.NoError(t, err)

	var res struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))

	gotID, role, err := service.NewTokenManager(testSecret, time.Hour).ParseAccess(res.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, service.RoleAdmin, role)

	_, err = run(t, opts, "token", "issue", "--user", userID.String(), "--role", "root")
	assert.Error(t, err)
}

func TestLedgerDepositAndBalance(t *testing.T) {
	opts := sharedMemoryOptions(t)
	userID := uuid.New().String()

	out, err := run(t, opts, "ledger", "deposit", "--user", userID, "--amount", "150")
	require.NoError(t, err)
	assert.Contains(t, out, "доступно: 150")

	_, err = run(t, opts, "ledger", "deposit", "--user", userID, "--amount", "50")
	require.NoError(t, err)

	out, err = run(t, opts, "ledger", "balance", "--user", userID)
	require.NoError(t, err)
	assert.Equal(t, "доступно: 200", strings.TrimSpace(out))

	_, err = run(t, opts, "ledger", "deposit", "--user", userID, "--amount", "-5")
	assert.Error(t, err)
}

func TestProductUpsertAndOpportunities(t *testing.T) {
	opts := sharedMemoryOptions(t)
	owner := uuid.New().String()
	productID := uuid.New().String()

	out, err := run(t, opts, "product", "upsert", "--id", productID, "--owner", owner, "--title", "Самокат", "--value", "120", "--lat", "55.75", "--lon", "37.61")
	require.NoError(t, err)
	assert.Contains(t, out, productID)

	_, err = run(t, opts, "product", "upsert", "--owner", owner, "--title", "Самокат", "--value", "0")
	assert.Error(t, err)

	out, err = run(t, opts, "opportunities")
	require.NoError(t, err)
	assert.Contains(t, out, "найдено цепочек: 0")
}

func TestSweepCommand(t *testing.T) {
	out, err := run(t, sharedMemoryOptions(t), "sweep", "--format", "json")
	require.NoError(t, err)

	var res map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 0, res["expired_multi_swaps"])
}

func TestMigrateRequiresPostgres(t *testing.T) {
	_, err := run(t, sharedMemoryOptions(t), "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.StorageDriverPostgres)
}
