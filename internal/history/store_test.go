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

package history

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.UnixMilli(1_700_000_000_000)

	records := []Record{
		{RunID: "r1", Scenario: "get case", SpecID: "Get_Case", Status: StatusPassed, Duration: 150 * time.Millisecond, CreatedAt: base},
		{RunID: "r1", Scenario: "create case", Status: StatusFailed, Message: "Response code mismatch", CreatedAt: base.Add(time.Second)},
		{RunID: "r2", Scenario: "get case", Status: StatusSkipped, CreatedAt: base.Add(time.Minute)},
	}
	for _, r := range records {
		require.NoError(t, s.Record(ctx, r))
	}

	all, err := s.Recent(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r2", all[0].RunID, "newest first")
	assert.True(t, all[2].CreatedAt.Equal(base))
	assert.Equal(t, 150*time.Millisecond, all[2].Duration)
	assert.Equal(t, "Get_Case", all[2].SpecID)

	byName, err := s.Recent(ctx, Filter{Scenario: "get case"})
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	failed, err := s.Recent(ctx, Filter{Status: StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "Response code mismatch", failed[0].Message)

	limited, err := s.Recent(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, s.Record(ctx, Record{RunID: "old", Scenario: "a", Status: StatusPassed, CreatedAt: base}))
	require.NoError(t, s.Record(ctx, Record{RunID: "new", Scenario: "a", Status: StatusPassed, CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.Record(ctx, Record{RunID: "new", Scenario: "b", Status: StatusFailed, CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.Record(ctx, Record{RunID: "new", Scenario: "c", Status: StatusSkipped, CreatedAt: base.Add(time.Hour)}))

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, [3]int{1, 1, 1}, [3]int{runs[0].Passed, runs[0].Failed, runs[0].Skipped})
	assert.True(t, runs[0].StartedAt.Equal(base.Add(time.Hour)))
	assert.Equal(t, "old", runs[1].RunID)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Record(ctx, Record{RunID: "r", Scenario: "s", Status: StatusPassed}))
		}()
	}
	wg.Wait()

	got, err := s.Recent(ctx, Filter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, got, 8)
}
