// Copyright 2023 The chopstm Authors
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

package debug

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	stats Stats
	ranks []RankEntry
}

func (f fakeProvider) Stats() Stats             { return f.stats }
func (f fakeProvider) RankSnapshot() []RankEntry { return f.ranks }

func TestStatsEndpointReturnsJSON(t *testing.T) {
	p := fakeProvider{stats: Stats{TotalStarts: 42, GlobalEpoch: 7}}
	srv := NewServer(p, p)

	req := httptest.NewRequest("GET", "/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var got Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint64(42), got.TotalStarts)
	assert.Equal(t, uint64(7), got.GlobalEpoch)
}

func TestRanksEndpointReturnsJSON(t *testing.T) {
	p := fakeProvider{ranks: []RankEntry{{Rank: 1, Thread: 2, Aborted: false}}}
	srv := NewServer(p, p)

	req := httptest.NewRequest("GET", "/ranks", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var got []RankEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, uint32(1), got[0].Rank)
	assert.Equal(t, 2, got[0].Thread)
}

func TestMethodNotAllowedOnWrongVerb(t *testing.T) {
	p := fakeProvider{}
	srv := NewServer(p, p)

	req := httptest.NewRequest("POST", "/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.NotEqual(t, 200, rec.Code)
}
