/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/cloudwego/gomalloc/internal/workload"
	"github.com/cloudwego/gomalloc/unsafex/malloc"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan struct{})
	var buf bytes.Buffer
	go func() {
		_, _ = buf.ReadFrom(r)
		close(done)
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	<-done
	return buf.String(), fnErr
}

// resetFlags restores the global flags to their defaults, backed by the heap.
func resetFlags(t *testing.T) {
	t.Helper()
	def := malloc.DefaultConfig()
	verbose, jsonOut, infoDetailed = false, false, false
	baseUnit, maxOrder, arenaBlocks = def.BaseUnit, def.MaxOrder, def.ArenaBlocks
	heapArena = true
	stressCfg = workload.DefaultConfig()
	stressWorkers = 1
}

// decodeJSON checks that output is a JSON object and returns it
func decodeJSON(t *testing.T, output string) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, output)
	}
	return result
}
