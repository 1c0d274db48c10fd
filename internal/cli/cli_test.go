package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/lemme_search/internal/config"
	"github.com/emandor/lemme_search/internal/db"
	"github.com/emandor/lemme_search/internal/model"
	"github.com/emandor/lemme_search/internal/tokens"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func sqliteEnv(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", dsn)
	t.Setenv("LOG_LEVEL", "disabled")
	return dsn
}

func TestTokenCommands(t *testing.T) {
	dsn := sqliteEnv(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations done")

	out, err = run(t, "token", "create", "--name", "alice", "--quota", "5")
	require.NoError(t, err)
	m := regexp.MustCompile(`token: (lm_[0-9a-f]+)`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	plain := m[1]

	_, err = run(t, "token", "set-provider", "--token", plain, "--provider", "万能题库", "--config", `{"token":"abc"}`, "--order", "2")
	require.NoError(t, err)

	_, err = run(t, "token", "set-provider", "--token", plain, "--provider", "x", "--config", `not json`)
	assert.ErrorContains(t, err, "JSON object")

	conn, err := db.Connect(db.DriverSQLite, dsn)
	require.NoError(t, err)
	defer conn.Close()
	store := tokens.NewStore(conn, nil, 0)
	tok, err := store.Authenticate(context.Background(), plain)
	require.NoError(t, err)
	assert.Equal(t, 5, tok.SearchQuota)

	list, err := store.ProviderConfigs(context.Background(), tok.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, map[string]any{"token": "abc"}, list[0].Config)
	assert.Equal(t, 2, list[0].SortOrder)
}

func TestAskFlags(t *testing.T) {
	f := askFlags{
		content:   " 中国的首都是 ",
		options:   []string{"北京", "上海"},
		providers: []string{"OPENAI", "言溪题库"},
		sets:      []string{"言溪题库.token=abc", "OPENAI.model=gpt-4o"},
	}
	q, reqs, err := f.build()
	require.NoError(t, err)
	assert.Equal(t, "中国的首都是", q.Content)
	assert.Equal(t, model.SingleChoice, q.Type)
	require.Len(t, reqs, 2)
	assert.Equal(t, map[string]any{"model": "gpt-4o"}, reqs[0].Config)
	assert.Equal(t, map[string]any{"token": "abc"}, reqs[1].Config)

	_, _, err = askFlags{content: "x", providers: []string{"a"}, sets: []string{"novalue"}}.build()
	assert.Error(t, err)
	_, _, err = askFlags{content: "x", qtype: 7, providers: []string{"a"}}.build()
	assert.Error(t, err)
	_, _, err = askFlags{content: "x"}.build()
	assert.Error(t, err)
}

func TestBuildWiresLocalAdapter(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")
	t.Setenv("PROVIDERS_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	_, err := run(t, "migrate")
	require.NoError(t, err)

	a, err := Build(config.Load())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Redis)
	assert.Contains(t, a.Registry.Names(), "Local")
	assert.NotNil(t, NewServer(a))
}
