package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/keygate/internal/domain"
)

var (
	machineA = domain.MachineIdentity{ComputerName: "DESKTOP-1", UserName: "alice", SerialNumber: "SN123"}
	machineB = domain.MachineIdentity{ComputerName: "LAPTOP-9", UserName: "bob", SerialNumber: "SN999"}
	client   = domain.ClientInfo{IPAddress: "10.0.0.1", UserAgent: "launcher/1.0"}
)

func TestKeyService_ValidateLifecycle(t *testing.T) {
	env := newTestEnv(false)
	ctx := context.Background()
	key := env.seedKey("GOU-AAAA-BBBB-CCCC")

	// First use binds.
	out, err := env.key.Validate(ctx, ValidateKeyInput{Key: key, Machine: machineA, Client: client})
	require.NoError(t, err)
	assert.Equal(t, domain.BindingBound, out.State)
	assert.Equal(t, "DESKTOP-1_alice_SN123", out.HWID)

	stored, _ := env.keys.GetByValue(ctx, key)
	assert.True(t, stored.IsUsed())
	assert.True(t, stored.BoundTo(out.HWID))
	require.NotNil(t, stored.UsedAt)

	// Same machine again is idempotent.
	out, err = env.key.Validate(ctx, ValidateKeyInput{Key: key, Machine: machineA, Client: client})
	require.NoError(t, err)
	assert.Equal(t, domain.BindingAlreadyHere, out.State)

	// Another machine is rejected and nothing changes.
	_, err = env.key.Validate(ctx, ValidateKeyInput{Key: key, Machine: machineB, Client: client})
	assert.ErrorIs(t, err, ErrKeyUsedElsewhere)

	stored, _ = env.keys.GetByValue(ctx, key)
	assert.True(t, stored.BoundTo(machineA.HWID()))

	assert.Equal(t, []domain.AccessAction{
		domain.AccessActionKeyValidation,
		domain.AccessActionKeyValidation,
		domain.AccessActionKeyValidation,
	}, env.logs.actions())
}

func TestKeyService_ValidateFailures(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		bindErr error
		wantErr error
	}{
		{name: "unknown key", key: "GOU-0000-0000-0000", wantErr: ErrKeyInvalid},
		{name: "blank key", key: "   ", wantErr: ErrKeyInvalid},
		{name: "empty key", key: "", wantErr: ErrKeyInvalid},
		{name: "mark failure", key: "GOU-AAAA-BBBB-CCCC", bindErr: errors.New("disk full"), wantErr: ErrKeyMarkFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(false)
			env.seedKey("GOU-AAAA-BBBB-CCCC")
			env.keys.bindErr = tt.bindErr

			_, err := env.key.Validate(context.Background(), ValidateKeyInput{Key: tt.key, Machine: machineA, Client: client})
			assert.ErrorIs(t, err, tt.wantErr)

			// The audit row is written before any branching, even for blank keys.
			require.Len(t, env.logs.actions(), 1)
			entry := env.logs.last()
			assert.Equal(t, domain.AccessActionKeyValidation, entry.Action)
			assert.Nil(t, entry.Username)
			assert.Equal(t, machineA.HWID(), entry.HWID)
		})
	}
}

func TestKeyService_ValidateUsedKeyWithoutHWID(t *testing.T) {
	env := newTestEnv(false)
	key := domain.NewKey("GOU-DEAD-BEEF-0000")
	key.Status = domain.KeyStatusUsed
	require.NoError(t, env.keys.Create(context.Background(), key))

	_, err := env.key.Validate(context.Background(), ValidateKeyInput{Key: key.Value, Machine: machineA})
	assert.ErrorIs(t, err, ErrKeyInvalid)
}

func TestKeyService_ValidateAuditFailureDoesNotBlock(t *testing.T) {
	env := newTestEnv(false)
	env.logs.appendErr = errors.New("log table locked")
	key := env.seedKey("GOU-AAAA-BBBB-CCCC")

	out, err := env.key.Validate(context.Background(), ValidateKeyInput{Key: key, Machine: machineA})
	require.NoError(t, err)
	assert.Equal(t, domain.BindingBound, out.State)
}

func TestKeyService_GenerateCountBounds(t *testing.T) {
	tests := []struct {
		count   int
		wantErr bool
	}{
		{count: -1, wantErr: true},
		{count: 0, wantErr: true},
		{count: domain.MinKeyBatch},
		{count: domain.MaxKeyBatch},
		{count: domain.MaxKeyBatch + 1, wantErr: true},
	}

	for _, tt := range tests {
		env := newTestEnv(false)
		out, err := env.key.Generate(context.Background(), GenerateKeysInput{Count: tt.count})
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidKeyCount, "count %d", tt.count)
			n, _ := env.keys.CountAll(context.Background())
			assert.Zero(t, n)
			continue
		}
		require.NoError(t, err, "count %d", tt.count)
		assert.Len(t, out.Keys, tt.count)
	}

	assert.EqualError(t, ErrInvalidKeyCount, "invalid count: must be between 1 and 100")
}

func TestKeyService_GenerateFive(t *testing.T) {
	env := newTestEnv(false)
	ctx := context.Background()

	out, err := env.key.Generate(ctx, GenerateKeysInput{Count: 5})
	require.NoError(t, err)
	require.Len(t, out.Keys, 5)

	pattern := domain.KeyPattern(domain.DefaultKeyPrefix)
	seen := make(map[string]bool)
	for _, v := range out.Keys {
		assert.Regexp(t, pattern, v)
		assert.False(t, seen[v], "duplicate key %s", v)
		seen[v] = true

		stored, err := env.keys.GetByValue(ctx, v)
		require.NoError(t, err)
		assert.Equal(t, domain.KeyStatusUnused, stored.Status)
		assert.Nil(t, stored.HWID)
	}
}

func TestKeyService_GeneratePrefix(t *testing.T) {
	custom := "VIP"
	empty := ""

	tests := []struct {
		name   string
		prefix *string
		want   string
	}{
		{name: "default", prefix: nil, want: "GOU"},
		{name: "custom", prefix: &custom, want: "VIP"},
		{name: "explicit empty", prefix: &empty, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(false)
			out, err := env.key.Generate(context.Background(), GenerateKeysInput{Count: 2, Prefix: tt.prefix})
			require.NoError(t, err)
			for _, v := range out.Keys {
				assert.Regexp(t, domain.KeyPattern(tt.want), v)
			}
		})
	}
}

func TestKeyService_GenerateRetriesCollisions(t *testing.T) {
	env := newTestEnv(false)
	env.keys.collide = 3

	out, err := env.key.Generate(context.Background(), GenerateKeysInput{Count: 1})
	require.NoError(t, err)
	assert.Len(t, out.Keys, 1)
}

func TestKeyService_GenerateGivesUpOnEndlessCollisions(t *testing.T) {
	env := newTestEnv(false)
	env.keys.collide = maxUniqueKeyAttempts

	_, err := env.key.Generate(context.Background(), GenerateKeysInput{Count: 1})
	assert.ErrorIs(t, err, ErrInternalError)
}

func TestKeyService_GenerateSkipsFailedInserts(t *testing.T) {
	env := newTestEnv(false)
	env.keys.createFailures = 2

	out, err := env.key.Generate(context.Background(), GenerateKeysInput{Count: 5})
	require.NoError(t, err)
	assert.Len(t, out.Keys, 3)
	assert.Equal(t, 2, out.Skipped)
}

func TestKeyService_GenerateAllInsertsFail(t *testing.T) {
	env := newTestEnv(false)
	env.keys.createErr = errors.New("read-only database")

	_, err := env.key.Generate(context.Background(), GenerateKeysInput{Count: 3})
	assert.ErrorIs(t, err, ErrNoKeysGenerated)
}

func TestKeyService_GenerateExistenceCheckFails(t *testing.T) {
	env := newTestEnv(false)
	env.keys.existsErr = errors.New("connection reset")

	_, err := env.key.Generate(context.Background(), GenerateKeysInput{Count: 3})
	assert.ErrorIs(t, err, ErrInternalError)
}

func TestKeyService_List(t *testing.T) {
	env := newTestEnv(false)
	ctx := context.Background()
	env.seedKey("GOU-0000-0000-0001")
	used := env.seedKey("GOU-0000-0000-0002")
	_, err := env.key.Validate(ctx, ValidateKeyInput{Key: used, Machine: machineA})
	require.NoError(t, err)

	result, err := env.key.List(ctx, ListKeysInput{Status: domain.KeyStatusUsed})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, used, result.Items[0].Value)

	_, err = env.key.List(ctx, ListKeysInput{Status: "revoked"})
	assert.Error(t, err)
}

func TestStatsService_AfterGenerateAndValidate(t *testing.T) {
	env := newTestEnv(false)
	ctx := context.Background()

	out, err := env.key.Generate(ctx, GenerateKeysInput{Count: 10})
	require.NoError(t, err)

	machines := []domain.MachineIdentity{machineA, machineB, {ComputerName: "C"}}
	for i, m := range machines {
		_, err := env.key.Validate(ctx, ValidateKeyInput{Key: out.Keys[i], Machine: m})
		require.NoError(t, err)
	}

	stats, err := env.stats.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, &domain.Stats{TotalKeys: 10, UsedKeys: 3, UnusedKeys: 7, TotalAccounts: 0}, stats)
}

func TestStatsService_Error(t *testing.T) {
	env := newTestEnv(false)
	env.keys.countErr = errors.New("timeout")

	_, err := env.stats.Get(context.Background())
	assert.ErrorIs(t, err, ErrInternalError)
}
