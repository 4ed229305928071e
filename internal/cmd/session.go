package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/turbolytics/docket/internal/config"
	"go.uber.org/zap"
)

func (g *globals) config() (*config.Config, error) {
	c, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.output != "" {
		c.Output = g.output
	}
	return c, nil
}

// session is a pipeline opened for one command invocation.
type session struct {
	*config.Pipeline
	logger *zap.Logger
}

func (g *globals) open(ctx context.Context, name string) (*session, error) {
	c, err := g.config()
	if err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(c.Logger)
	if err != nil {
		return nil, err
	}
	l := logger.Named(name)

	p, err := config.Initialize(ctx, c, l)
	if err != nil {
		logger.Sync()
		return nil, err
	}
	return &session{Pipeline: p, logger: l}, nil
}

func (s *session) Close() {
	if err := s.Pipeline.Close(); err != nil {
		s.logger.Warn("close failed", zap.Error(err))
	}
	s.logger.Sync()
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func datasetArg(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("dataset must be a number, got %q", arg)
	}
	return n, nil
}
