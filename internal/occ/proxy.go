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

package occ

// Proxy is the item-handle returned by Txn.Item/ReadItem/CheckItem: a
// fluent way to record a read and/or a write against one item without the
// caller ever touching the item set directly.
type Proxy struct {
	txn  *Txn
	item *Item
}

// AddRead records rdata as the item's read stamp, unless a read was
// already recorded (the first read observed wins, matching the original's
// "verify only the oldest read" comment).
func (p *Proxy) AddRead(rdata any) *Proxy {
	if !p.item.hasRead {
		p.item.hasRead = true
		p.item.readData = p.txn.buf.Pack(rdata, nil)
	}
	return p
}

// AddWrite records wdata as the item's pending write, overwriting any
// previous write recorded on the same item.
func (p *Proxy) AddWrite(wdata any) *Proxy {
	p.item.hasWrite = true
	p.item.writeData = p.txn.buf.Pack(wdata, nil)
	return p
}

// UpdateRead replaces the recorded read stamp with newRdata, but only if a
// read was recorded and its current value equals oldRdata. Used to advance
// a read stamp in place after observing a compatible newer version.
func (p *Proxy) UpdateRead(oldRdata, newRdata any) *Proxy {
	if p.item.hasRead && p.item.ReadValue() == oldRdata {
		p.item.readData = p.txn.buf.Pack(newRdata, nil)
	}
	return p
}

// HasRead reports whether a read has been recorded on this item.
func (p *Proxy) HasRead() bool { return p.item.hasRead }

// HasWrite reports whether a write has been recorded on this item.
func (p *Proxy) HasWrite() bool { return p.item.hasWrite }

// ReadValue returns the recorded read stamp, or nil if none was recorded.
func (p *Proxy) ReadValue() any { return p.item.ReadValue() }

// WriteValue returns the recorded write value, or nil if none was
// recorded.
func (p *Proxy) WriteValue() any { return p.item.WriteValue() }

// Item returns the underlying Item this Proxy wraps.
func (p *Proxy) Item() *Item { return p.item }
