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

package chopstm

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugHandlerServesStats(t *testing.T) {
	e := newTestEngine(t, 2, 4)
	r := newRegister()

	w := e.Worker(0)
	w.Transaction().Item(r, 1).AddWrite(1)
	require.NoError(t, w.Transaction().TryCommit())

	req := httptest.NewRequest("GET", "/stats", nil)
	rec := httptest.NewRecorder()
	e.DebugHandler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["total_starts"])
}

func TestDebugHandlerServesRanksAfterChoppedPiece(t *testing.T) {
	e := newTestEngine(t, 2, 4)
	r := newRegister()

	w := e.Worker(0)
	w.Chopped().StartTxn()
	w.Chopped().StartPiece(0)
	w.Transaction().Item(r, 1).AddWrite(1)
	require.True(t, w.Chopped().TryCommitPiece())
	// Before EndTxn, the piece is still published in the rank table.

	req := httptest.NewRequest("GET", "/ranks", nil)
	rec := httptest.NewRecorder()
	e.DebugHandler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.EqualValues(t, 0, got[0]["thread"])

	w.Chopped().EndTxn()
}
