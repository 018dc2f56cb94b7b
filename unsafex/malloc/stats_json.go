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

package malloc

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// BuildStatsString renders the allocator statistics as JSON. With detailed
// set it also lists every arena block in address order and every large object.
func (a *Allocator) BuildStatsString(detailed bool) string {
	w := jwriter.NewWriter()
	a.printStats(&w, detailed)
	return string(w.Bytes())
}

func (a *Allocator) printStats(w *jwriter.Writer, detailed bool) {
	s := a.Stats()

	obj := w.Object()
	defer obj.End()

	cfg := obj.Name("Config").Object()
	cfg.Name("BaseUnit").Int(a.cfg.BaseUnit)
	cfg.Name("MaxOrder").Int(a.cfg.MaxOrder)
	cfg.Name("ArenaBlocks").Int(a.cfg.ArenaBlocks)
	cfg.Name("MaxRequest").Int(a.cfg.MaxRequest)
	cfg.End()

	total := obj.Name("Total").Object()
	total.Name("ArenaBytes").Int(s.ArenaBytes)
	total.Name("HeaderSize").Int(s.HeaderSize)
	total.Name("FreeBlocks").Int(s.FreeBlocks)
	total.Name("FreeBytes").Int(s.FreeBytes)
	total.Name("AllocatedBlocks").Int(s.AllocatedBlocks)
	total.Name("AllocatedBytes").Int(s.AllocatedBytes)
	total.Name("MetadataBytes").Int(s.MetadataBytes)
	total.Name("LargeObjects").Int(s.LargeObjects)
	total.Name("LargeBytes").Int(s.LargeBytes)
	total.End()

	orders := obj.Name("FreeBlocksByOrder").Array()
	for _, n := range s.FreeBlocksByOrder {
		orders.Int(n)
	}
	orders.End()

	if !detailed {
		return
	}

	blocks := obj.Name("Blocks").Array()
	a.walk(func(off int64, h *header) bool {
		b := blocks.Object()
		b.Name("Offset").Int(int(off))
		b.Name("Order").Int(int(h.order))
		b.Name("Size").Int(int(h.size))
		b.Name("Free").Bool(h.isFree())
		b.End()
		return true
	})
	blocks.End()

	large := obj.Name("LargeObjects").Array()
	a.large.each(func(mem []byte) {
		l := large.Object()
		l.Name("Size").Int(int(largeHeader(mem).size))
		l.End()
	})
	large.End()
}
