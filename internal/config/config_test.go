// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/config"
)

func TestDefault_HasSaneValues(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, "memory", cfg.DatabaseURL)
	require.True(t, cfg.InitSchema)
	require.Equal(t, "default", cfg.DefaultLane)
	require.Equal(t, 10, cfg.MaxConcurrency)
	require.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conveyor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_url: \"sqlite:///tmp/test.db\"\nmax_concurrency: 25\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "sqlite:///tmp/test.db", cfg.DatabaseURL)
	require.Equal(t, 25, cfg.MaxConcurrency)
	require.Equal(t, "default", cfg.DefaultLane) // unset fields keep the default
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conveyor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_concurrency: 25\n"), 0o644))

	t.Setenv("CONVEYOR_MAX_CONCURRENCY", "40")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 40, cfg.MaxConcurrency)
}

func TestLoad_NoPathUsesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, config.Default().DatabaseURL, cfg.DatabaseURL)
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "verbose"
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveConcurrency(t *testing.T) {
	cfg := config.Default()
	cfg.MaxConcurrency = 0
	require.Error(t, cfg.Validate())
}
