package session

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
)

// Client adapts a connected gopcua client to Session. Browse follows
// continuation points so callers always see complete reference lists.
type Client struct {
	c               *opcua.Client
	maxRefsPerNode  uint32
	maxContinuation int
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithMaxReferencesPerNode limits references returned per browse result
// before the server hands out a continuation point
func WithMaxReferencesPerNode(n uint32) ClientOption {
	return func(c *Client) { c.maxRefsPerNode = n }
}

// NewClient wraps c
func NewClient(c *opcua.Client, opts ...ClientOption) *Client {
	cl := &Client{c: c, maxContinuation: 1000}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// Browse implements Session
func (s *Client) Browse(ctx context.Context, nodes []*ua.BrowseDescription) ([]*ua.BrowseResult, error) {
	resp, err := s.c.Browse(ctx, &ua.BrowseRequest{
		View:                          &ua.ViewDescription{ViewID: ua.NewTwoByteNodeID(0)},
		RequestedMaxReferencesPerNode: s.maxRefsPerNode,
		NodesToBrowse:                 nodes,
	})
	if err != nil {
		return nil, fmt.Errorf("browse: %w", err)
	}
	results := resp.Results
	if len(results) != len(nodes) {
		return nil, fmt.Errorf("browse %d nodes, got %d results: %w", len(nodes), len(results), ErrResultCount)
	}

	for round := 0; ; round++ {
		var points [][]byte
		var pending []int
		for i, r := range results {
			if r != nil && len(r.ContinuationPoint) > 0 {
				points = append(points, r.ContinuationPoint)
				pending = append(pending, i)
			}
		}
		if len(points) == 0 {
			return results, nil
		}
		if round >= s.maxContinuation {
			return nil, fmt.Errorf("browse: continuation did not finish after %d rounds", round)
		}

		next, err := s.c.BrowseNext(ctx, &ua.BrowseNextRequest{ContinuationPoints: points})
		if err != nil {
			return nil, fmt.Errorf("browse next: %w", err)
		}
		if len(next.Results) != len(points) {
			return nil, fmt.Errorf("browse next %d points, got %d results: %w", len(points), len(next.Results), ErrResultCount)
		}
		for j, r := range next.Results {
			target := results[pending[j]]
			target.ContinuationPoint = nil
			if r == nil {
				continue
			}
			if !IsGood(r.StatusCode) {
				target.StatusCode = r.StatusCode
				continue
			}
			target.References = append(target.References, r.References...)
			target.ContinuationPoint = r.ContinuationPoint
		}
	}
}

// Read implements Session
func (s *Client) Read(ctx context.Context, nodes []*ua.ReadValueID) ([]*ua.DataValue, error) {
	resp, err := s.c.Read(ctx, &ua.ReadRequest{
		MaxAge:             0,
		TimestampsToReturn: ua.TimestampsToReturnNeither,
		NodesToRead:        nodes,
	})
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if len(resp.Results) != len(nodes) {
		return nil, fmt.Errorf("read %d nodes, got %d values: %w", len(nodes), len(resp.Results), ErrResultCount)
	}
	return resp.Results, nil
}

// TranslateBrowsePaths implements Session
func (s *Client) TranslateBrowsePaths(ctx context.Context, paths []*ua.BrowsePath) ([]*ua.BrowsePathResult, error) {
	req := &ua.TranslateBrowsePathsToNodeIDsRequest{BrowsePaths: paths}

	var resp *ua.TranslateBrowsePathsToNodeIDsResponse
	err := s.c.Send(ctx, req, func(v ua.Response) error {
		r, ok := v.(*ua.TranslateBrowsePathsToNodeIDsResponse)
		if !ok {
			return fmt.Errorf("translate browse paths: unexpected response %T", v)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("translate browse paths: %w", err)
	}
	if len(resp.Results) != len(paths) {
		return nil, fmt.Errorf("translate %d paths, got %d results: %w", len(paths), len(resp.Results), ErrResultCount)
	}
	return resp.Results, nil
}

// Dial connects to endpoint with anonymous, unsecured settings
func Dial(ctx context.Context, endpoint string, opts ...opcua.Option) (*opcua.Client, error) {
	c, err := opcua.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", endpoint, err)
	}
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", endpoint, err)
	}
	return c, nil
}
