/*
MIT License

Copyright (c) 2020 Nicolas JUHEL

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package main

import (
	"fmt"
	"os"

	"github.com/nabbar/wlproxy/internal/config"
	"github.com/nabbar/wlproxy/internal/metrics"
	"github.com/nabbar/wlproxy/internal/pool"
	"github.com/nabbar/wlproxy/internal/shadow"
	"github.com/nabbar/wlproxy/internal/transfer"
)

// dumpTransfer exercises the combine_transfer_blocks diagnostic path named
// in spec.md §4.E against a synthetic whole-object shadow, and writes the
// combined, still-framed byte stream to path. This is the debug surface
// SPEC_FULL.md §4.1 names: an offline way to inspect what a collection pass
// actually produced, independent of any live channel. m9s, if non-nil, is
// updated the same way a live collection/apply pass would update it
// (queue depth while collecting, bytes mirrored and blocks applied once
// done), so the debug path exercises the same metrics surface as the real
// one instead of leaving it untouched.
func dumpTransfer(cfg *config.Config, content []byte, path string, m9s *metrics.Metrics) error {
	codec, closeCodec, err := config.BuildCodec(cfg)
	if err != nil {
		return err
	}
	defer closeCodec()

	p := pool.New(cfg.PoolWorkers)
	if m9s != nil {
		p.QueueDepth = m9s.QueueDepth
	}
	defer p.Stop()

	s := &shadow.Shadow{RemoteID: 1, Kind: shadow.KindFile, Size: int64(len(content))}
	s.MarkDirty(true, 0, int64(len(content)))

	read := func(sh *shadow.Shadow, start, end int64) ([]byte, error) {
		return content[start:end], nil
	}

	buf := transfer.CollectUpdate(p, s, codec, int64(len(content)), read)
	if err = transfer.FinishUpdate(p, s, buf); err != nil {
		if m9s != nil {
			m9s.PeerDesyncs.Inc()
		}
		return fmt.Errorf("dump-transfer: collection failed: %w", err)
	}

	combined := buf.Combine()
	if m9s != nil {
		m9s.BytesMirrored.Add(float64(len(content)))
		m9s.BlocksApplied.Add(float64(buf.Len()))
	}

	return os.WriteFile(path, combined, 0o644)
}
