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

// Package debug provides an HTTP introspection surface for a running
// chopstm engine: a JSON stats snapshot and a JSON dump of rank-table
// occupancy, for interactively diagnosing stuck workers. It is
// observability tooling around the engine, not part of its core.
package debug

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// StatsProvider is the slice of Engine that the /stats endpoint needs.
type StatsProvider interface {
	Stats() Stats
}

// RankProvider is the slice of Engine that the /ranks endpoint needs.
type RankProvider interface {
	RankSnapshot() []RankEntry
}

// Stats mirrors chopstm.Stats; duplicated here so this package doesn't
// import the root package (which would create an import cycle, since the
// root package is what wires debug in).
type Stats struct {
	TotalStarts      uint64 `json:"total_starts"`
	TotalAborts      uint64 `json:"total_aborts"`
	CommitTimeAborts uint64 `json:"commit_time_aborts"`
	MaxItemSetSize   uint64 `json:"max_item_set_size"`
	TotalReads       uint64 `json:"total_reads"`
	TotalWrites      uint64 `json:"total_writes"`
	TotalSearched    uint64 `json:"total_searched"`
	TotalItems       uint64 `json:"total_items"`
	GlobalEpoch      uint64 `json:"global_epoch"`
}

// RankEntry summarizes one published piece in the rank table: which rank,
// which worker thread published it, and whether its owning transaction has
// since been aborted.
type RankEntry struct {
	Rank    uint32 `json:"rank"`
	Thread  int    `json:"thread"`
	Aborted bool   `json:"aborted"`
}

// Server serves the introspection endpoints over HTTP.
type Server struct {
	stats StatsProvider
	ranks RankProvider
}

// NewServer builds a Server backed by stats and ranks.
func NewServer(stats StatsProvider, ranks RankProvider) *Server {
	return &Server{stats: stats, ranks: ranks}
}

// Handler builds the mux.Router serving GET /stats and GET /ranks.
func (s *Server) Handler() http.Handler {
	m := mux.NewRouter()
	m.Path("/stats").Methods(http.MethodGet).HandlerFunc(s.handleStats)
	m.Path("/ranks").Methods(http.MethodGet).HandlerFunc(s.handleRanks)
	return m
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.stats.Stats())
}

func (s *Server) handleRanks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.ranks.RankSnapshot())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
