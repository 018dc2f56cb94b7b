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

package osmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappers(t *testing.T) {
	mappers := []struct {
		name string
		m    Mapper
	}{
		{"system", System()},
		{"heap", HeapMapper{}},
	}
	for _, tt := range mappers {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.m.Map(64 << 10)
			require.NoError(t, err)
			require.Len(t, b, 64<<10)

			// writable end to end
			b[0] = 1
			b[len(b)-1] = 2
			assert.Equal(t, byte(1), b[0])
			assert.Equal(t, byte(2), b[len(b)-1])

			assert.NoError(t, tt.m.Unmap(b))
		})
	}
}

func TestMapInvalidSize(t *testing.T) {
	for _, m := range []Mapper{System(), HeapMapper{}} {
		_, err := m.Map(0)
		assert.Error(t, err)
		_, err = m.Map(-1)
		assert.Error(t, err)
	}
}

func TestUnmapEmpty(t *testing.T) {
	assert.NoError(t, System().Unmap(nil))
	assert.NoError(t, HeapMapper{}.Unmap(nil))
}
