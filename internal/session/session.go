// Package session defines the graph operations that data type discovery
// issues against an OPC UA server and the helpers that build requests and
// shape their results.
//
// Every operation takes an ordered batch and returns results in request
// order. A bad status on one result is reported on that result; the returned
// error is reserved for failures of the call as a whole.
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gopcua/opcua/ua"
)

// Session is the remote address space as seen by discovery
type Session interface {
	Browse(ctx context.Context, nodes []*ua.BrowseDescription) ([]*ua.BrowseResult, error)
	Read(ctx context.Context, nodes []*ua.ReadValueID) ([]*ua.DataValue, error)
	TranslateBrowsePaths(ctx context.Context, paths []*ua.BrowsePath) ([]*ua.BrowsePathResult, error)
}

// Stats counts round trips and requested items per operation
type Stats struct {
	BrowseCalls    int64 `json:"browseCalls"`
	BrowseItems    int64 `json:"browseItems"`
	ReadCalls      int64 `json:"readCalls"`
	ReadItems      int64 `json:"readItems"`
	TranslateCalls int64 `json:"translateCalls"`
	TranslateItems int64 `json:"translateItems"`
}

// RoundTrips returns the total number of calls
func (s Stats) RoundTrips() int64 {
	return s.BrowseCalls + s.ReadCalls + s.TranslateCalls
}

// Counting wraps a Session and counts the traffic going through it
type Counting struct {
	next Session

	browseCalls    atomic.Int64
	browseItems    atomic.Int64
	readCalls      atomic.Int64
	readItems      atomic.Int64
	translateCalls atomic.Int64
	translateItems atomic.Int64

	mu    sync.Mutex
	reads map[readKey]int
}

type readKey struct {
	node string
	attr ua.AttributeID
}

// NewCounting wraps next
func NewCounting(next Session) *Counting {
	return &Counting{next: next, reads: make(map[readKey]int)}
}

// Browse implements Session
func (c *Counting) Browse(ctx context.Context, nodes []*ua.BrowseDescription) ([]*ua.BrowseResult, error) {
	c.browseCalls.Add(1)
	c.browseItems.Add(int64(len(nodes)))
	return c.next.Browse(ctx, nodes)
}

// Read implements Session
func (c *Counting) Read(ctx context.Context, nodes []*ua.ReadValueID) ([]*ua.DataValue, error) {
	c.readCalls.Add(1)
	c.readItems.Add(int64(len(nodes)))
	c.mu.Lock()
	for _, n := range nodes {
		if n != nil && n.NodeID != nil {
			c.reads[readKey{n.NodeID.String(), n.AttributeID}]++
		}
	}
	c.mu.Unlock()
	return c.next.Read(ctx, nodes)
}

// TranslateBrowsePaths implements Session
func (c *Counting) TranslateBrowsePaths(ctx context.Context, paths []*ua.BrowsePath) ([]*ua.BrowsePathResult, error) {
	c.translateCalls.Add(1)
	c.translateItems.Add(int64(len(paths)))
	return c.next.TranslateBrowsePaths(ctx, paths)
}

// Stats returns a snapshot of the counters
func (c *Counting) Stats() Stats {
	return Stats{
		BrowseCalls:    c.browseCalls.Load(),
		BrowseItems:    c.browseItems.Load(),
		ReadCalls:      c.readCalls.Load(),
		ReadItems:      c.readItems.Load(),
		TranslateCalls: c.translateCalls.Load(),
		TranslateItems: c.translateItems.Load(),
	}
}

// Reads returns how many times an attribute of a node has been read
func (c *Counting) Reads(id *ua.NodeID, attr ua.AttributeID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads[readKey{id.String(), attr}]
}
