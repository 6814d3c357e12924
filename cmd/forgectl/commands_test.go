package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodforge/internal/identity"
	"foodforge/internal/notify"
	"foodforge/internal/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func useSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forge.db")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func TestRootCmd(t *testing.T) {
	cmd := newRootCmd()
	assert.Equal(t, "forgectl", cmd.Use)
	for _, name := range []string{"migrate", "create-admin", "token", "classify", "watch"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.NotEmpty(t, sub.Short, name)
	}

	admin := createAdminCmd()
	require.NotNil(t, admin.Flags().Lookup("email"))
	require.NotNil(t, admin.Flags().Lookup("name"))
	require.NotNil(t, admin.Flags().Lookup("password"))
}

func TestClassify(t *testing.T) {
	cases := map[string]string{"8": "breakfast", "10": "dinner", "11": "lunch", "15": "dinner", "0": "dinner"}
	for hour, want := range cases {
		out, err := run(t, "classify", hour)
		require.NoError(t, err, hour)
		assert.Equal(t, want+"\n", out, hour)
	}
	_, err := run(t, "classify", "24")
	assert.Error(t, err)
	_, err = run(t, "classify", "noon")
	assert.Error(t, err)
}

func TestTokenEncodeDecode(t *testing.T) {
	out, err := run(t, "token", "encode", "u1", "--at", "2026-10-18T08:15:00Z")
	require.NoError(t, err)
	payload := strings.TrimSpace(out)
	assert.Equal(t, `{"uid":"u1","t":1792311300000}`, payload)

	out, err = run(t, "token", "decode", payload)
	require.NoError(t, err)
	var decoded struct {
		UserID   string    `json:"user_id"`
		IssuedAt time.Time `json:"issued_at"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "u1", decoded.UserID)
	assert.True(t, decoded.IssuedAt.Equal(time.Date(2026, 10, 18, 8, 15, 0, 0, time.UTC)))

	_, err = run(t, "token", "decode", "hello")
	assert.Error(t, err)

	png := filepath.Join(t.TempDir(), "code.png")
	_, err = run(t, "token", "encode", "u1", "--png", png)
	require.NoError(t, err)
	data, err := os.ReadFile(png)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestMigrateAndCreateAdmin(t *testing.T) {
	path := useSQLite(t)
	t.Setenv(AdminPasswordEnv, "")

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")

	_, err = run(t, "create-admin", "--email", "warden@example.edu", "--name", "Mess Warden")
	assert.ErrorContains(t, err, "password required")

	t.Setenv(AdminPasswordEnv, "station-secret")
	out, err = run(t, "create-admin", "--email", "Warden@Example.edu", "--name", "Mess Warden")
	require.NoError(t, err)
	assert.Contains(t, out, "<warden@example.edu>")

	_, err = run(t, "create-admin", "--email", "warden@example.edu", "--name", "Again")
	assert.ErrorIs(t, err, identity.ErrEmailTaken)

	db, err := store.NewSQLite(path)
	require.NoError(t, err)
	defer db.Close()
	admins, err := identity.NewSQLStore(db).ListByRole(context.Background(), identity.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "Mess Warden", admins[0].FullName)
}

func TestWatchStreamsEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("NOTIFIER_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("NOTIFY_CHANNEL", "forge-test")
	t.Setenv("LOG_LEVEL", "error")

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"watch", "--count", "1"})
		err := cmd.Execute()
		done <- result{out: out.String(), err: err}
	}()
	require.Eventually(t, func() bool { return mr.PubSubNumPat() > 0 }, 2*time.Second, 10*time.Millisecond)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	evt, err := notify.NewInsert(notify.TableScans, map[string]string{"id": "r1", "user_id": "u1"})
	require.NoError(t, err)
	require.NoError(t, notify.NewRedis(client, "forge-test", nil).Publish(context.Background(), evt))

	select {
	case res := <-done:
		require.NoError(t, res.err)
		var got notify.Event
		require.NoError(t, json.Unmarshal([]byte(res.out), &got))
		assert.Equal(t, notify.TableScans, got.Table)
		assert.JSONEq(t, `{"id":"r1","user_id":"u1"}`, string(got.Record))
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not return")
	}
}

func TestWatchRequiresRedis(t *testing.T) {
	t.Setenv("NOTIFIER_BACKEND", "memory")
	_, err := run(t, "watch")
	assert.ErrorContains(t, err, "NOTIFIER_BACKEND=redis")
}
