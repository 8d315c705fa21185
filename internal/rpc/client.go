package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls a remote FrbSifter service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in any, opts []grpc.CallOption) (*Reply, error) {
	out := new(Reply)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckConfiguration submits a node's YAML configuration for comparison.
func (c *Client) CheckConfiguration(ctx context.Context, yaml string, opts ...grpc.CallOption) (*Reply, error) {
	return c.invoke(ctx, checkConfigurationMethod, &ConfigMessage{YAML: yaml}, opts)
}

// FrbEvents sends one chunk's detections.
func (c *Client) FrbEvents(ctx context.Context, msg *FrbEventsMessage, opts ...grpc.CallOption) (*Reply, error) {
	return c.invoke(ctx, frbEventsMethod, msg, opts)
}
