package database

import (
	"context"
	"errors"

	"github.com/koustreak/qgenie/internal/dialect"
	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
)

// Opener opens one connection for a dialect from its connect arguments.
type Opener func(ctx context.Context, args dialect.ConnectArgs, opts Options) (Conn, error)

// Connector is the connection factory: a compile-time table of openers keyed
// by dialect. It is safe for concurrent use once built.
type Connector struct {
	openers map[dialect.Type]Opener
	opts    Options
	log     *logger.Logger
}

// NewConnector builds a Connector from openers.
func NewConnector(openers map[dialect.Type]Opener, opts Options) *Connector {
	m := make(map[dialect.Type]Opener, len(openers))
	for t, o := range openers {
		m[t] = o
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Connector{openers: m, opts: opts, log: log.Component("connector")}
}

// Supports reports whether an opener is registered for t.
func (c *Connector) Supports(t dialect.Type) bool {
	_, ok := c.openers[t]
	return ok
}

// Connect opens one connection. Every failure, including a dialect with no
// registered opener, is reported as ErrKindConnectionFailed.
func (c *Connector) Connect(ctx context.Context, args dialect.ConnectArgs) (Conn, error) {
	open, ok := c.openers[args.Type]
	if !ok {
		return nil, errs.Newf(errs.ErrKindConnectionFailed, "no driver available for %q", string(args.Type)).
			WithCode(errs.CodeFailConnectDB)
	}

	c.log.With().Str("db_type", string(args.Type)).Any("args", args.Redacted()).Logger().Debug("opening connection")

	if c.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
	}

	conn, err := open(ctx, args, c.opts)
	if err != nil {
		return nil, asConnectionFailed(err, args.Type)
	}
	return conn, nil
}

// Test opens, pings and closes a connection.
func (c *Connector) Test(ctx context.Context, args dialect.ConnectArgs) error {
	conn, err := c.Connect(ctx, args)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		return asConnectionFailed(err, args.Type)
	}
	return nil
}

func asConnectionFailed(err error, t dialect.Type) error {
	var e *errs.Error
	if errors.As(err, &e) && e.Kind == errs.ErrKindConnectionFailed {
		if e.Code == "" {
			e.Code = errs.CodeFailConnectDB
		}
		return e
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, "failed to connect to "+string(t), err).
		WithCode(errs.CodeFailConnectDB)
}
