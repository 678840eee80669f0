package netshim

import (
	"fmt"
	"net"
	"net/rpc"

	"github.com/disaggr/memspace/pkg/tuplespace"
)

// WireField is a gob-safe rendering of a [tuplespace.Field]. net/rpc's gob
// codec needs concrete, registered types to cross the wire - it cannot
// encode the Field interface directly - so the façade trades the core's
// interface-based Tuple/Template for this flat representation at the RPC
// boundary only; [Bag] itself still speaks tuplespace.Tuple/Template.
type WireField struct {
	// Kind is 0 for a wildcard (valid only in a template), 1 for Int64,
	// 2 for Bytes - mirrors the core's on-shmem field tags (§3).
	Kind byte
	I    int64
	B    []byte
}

// WireTuple is an ordered sequence of [WireField], the wire rendering of
// a [tuplespace.Tuple] or [tuplespace.Template].
type WireTuple []WireField

func toWire(t tuplespace.Tuple) WireTuple {
	out := make(WireTuple, len(t))

	for i, f := range t {
		switch v := f.(type) {
		case tuplespace.Int64:
			out[i] = WireField{Kind: 1, I: int64(v)}
		case tuplespace.Bytes:
			out[i] = WireField{Kind: 2, B: append([]byte(nil), v...)}
		}
	}

	return out
}

func fromWire(w WireTuple) tuplespace.Template {
	out := make(tuplespace.Template, len(w))

	for i, f := range w {
		switch f.Kind {
		case 1:
			out[i] = tuplespace.Int64(f.I)
		case 2:
			out[i] = tuplespace.Bytes(f.B)
		default:
			out[i] = tuplespace.Wildcard{}
		}
	}

	return out
}

// Service exposes a [Bag] over net/rpc. Method names follow the spec's
// directive (§9) to expose exactly one canonical destructive name: Get,
// never the prototype's inconsistent "take".
type Service struct {
	bag *Bag
}

// NewService wraps bag for RPC registration.
func NewService(bag *Bag) *Service {
	return &Service{bag: bag}
}

type PutArgs struct {
	Tuple WireTuple
}

type PutReply struct{}

// Put appends args.Tuple to the bag.
func (s *Service) Put(args PutArgs, reply *PutReply) error {
	return s.bag.Put(tuplespace.Tuple(fromWire(args.Tuple)))
}

type MatchArgs struct {
	Template WireTuple
}

type MatchReply struct {
	Found bool
	Tuple WireTuple
}

// Get returns and consumes the first tuple matching args.Template.
func (s *Service) Get(args MatchArgs, reply *MatchReply) error {
	t, ok := s.bag.Get(fromWire(args.Template))
	reply.Found = ok
	reply.Tuple = toWire(t)

	return nil
}

// Read returns the first tuple matching args.Template without consuming it.
func (s *Service) Read(args MatchArgs, reply *MatchReply) error {
	t, ok := s.bag.Read(fromWire(args.Template))
	reply.Found = ok
	reply.Tuple = toWire(t)

	return nil
}

// Serve registers a [Service] wrapping bag and accepts RPC connections on
// addr (host:port) until the listener is closed. It returns once the
// listener is established; accepting runs in the background.
//
// Possible errors: net.Listen failures, rpc.Register failures.
func Serve(bag *Bag, addr string) (net.Listener, error) {
	srv := rpc.NewServer()

	if err := srv.RegisterName("TupleSpace", NewService(bag)); err != nil {
		return nil, fmt.Errorf("netshim: register service: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netshim: listen on %s: %w", addr, err)
	}

	go srv.Accept(ln)

	return ln, nil
}

// Client is a thin wrapper around [rpc.Client] exposing put/get/read
// against a remote [Service].
type Client struct {
	rc *rpc.Client
}

// Dial connects to a netshim server at addr.
func Dial(addr string) (*Client, error) {
	rc, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netshim: dial %s: %w", addr, err)
	}

	return &Client{rc: rc}, nil
}

// Put appends t on the remote bag.
func (c *Client) Put(t tuplespace.Tuple) error {
	var reply PutReply
	return c.rc.Call("TupleSpace.Put", PutArgs{Tuple: toWire(t)}, &reply)
}

// Get returns and consumes the first remote tuple matching tmpl.
func (c *Client) Get(tmpl tuplespace.Template) (tuplespace.Tuple, bool, error) {
	var reply MatchReply

	if err := c.rc.Call("TupleSpace.Get", MatchArgs{Template: toWire(tuplespace.Tuple(tmpl))}, &reply); err != nil {
		return nil, false, err
	}

	return tuplespace.Tuple(fromWire(reply.Tuple)), reply.Found, nil
}

// Read returns the first remote tuple matching tmpl without consuming it.
func (c *Client) Read(tmpl tuplespace.Template) (tuplespace.Tuple, bool, error) {
	var reply MatchReply

	if err := c.rc.Call("TupleSpace.Read", MatchArgs{Template: toWire(tuplespace.Tuple(tmpl))}, &reply); err != nil {
		return nil, false, err
	}

	return tuplespace.Tuple(fromWire(reply.Tuple)), reply.Found, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.rc.Close()
}
