package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/markis/convstream/internal/args"
	"github.com/markis/convstream/internal/client"
	"github.com/markis/convstream/internal/config"
	"github.com/markis/convstream/internal/logging"
	"github.com/markis/convstream/internal/render"
	"github.com/markis/convstream/internal/stream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, argv []string, stdin io.Reader, out io.Writer) error {
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := args.ParseArgs(ctx, *cfg, argv, stdin)
	if err != nil {
		return err
	}
	cfg.BaseURL = a.BaseURL

	c, err := client.New(*cfg, logger)
	if err != nil {
		return err
	}

	switch a.Command {
	case args.CommandList:
		err = listConversations(ctx, c, a.Scene, out)
	default:
		err = createConversation(ctx, c, a, cfg.Render.Wrap, out, logger)
	}
	return describe(err)
}

// createConversation streams the reply while rendering it; the reader and
// the renderer run concurrently and stop together.
func createConversation(ctx context.Context, c *client.Client, a args.Arguments, wrap int, out io.Writer, logger *zap.Logger) error {
	req := client.CreateConversationRequest{
		Role:              a.Role,
		SenderCharacter:   a.Sender,
		ReceiverCharacter: a.Receiver,
		Content:           a.Content,
		Parent:            a.Parent,
		Scene:             a.Scene,
	}
	logger.Debug("creating conversation", zap.Int64("scene", a.Scene), zap.String("role", a.Role))

	g, gctx := errgroup.WithContext(ctx)
	parser := stream.NewParser(gctx)

	g.Go(func() error {
		parser.Process(func(h stream.Handler) {
			c.CreateConversation(gctx, req, h)
		})
		return nil
	})
	g.Go(func() error {
		return render.NewTerminalRenderer(out, a.UsePlainText, wrap).Render(parser.Chunks())
	})

	if err := g.Wait(); err != nil {
		return err
	}
	// The parser drops its last chunk once ctx is done, so an interrupted
	// stream can close cleanly.
	return ctx.Err()
}

func listConversations(ctx context.Context, c *client.Client, scene int64, out io.Writer) error {
	convs, err := c.ListConversations(ctx, scene)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		_, err := fmt.Fprintf(out, "no conversations in scene %d\n", scene)
		return err
	}
	for _, conv := range convs {
		line := strings.ReplaceAll(conv.Content, "\n", " ")
		if _, err := fmt.Fprintf(out, "#%d [%s] %s\n", conv.ConversationID, conv.Role, line); err != nil {
			return err
		}
	}
	return nil
}

// describe prefixes transport failures with a short explanation of the status.
func describe(err error) error {
	var te *stream.TransportError
	if errors.As(err, &te) {
		return fmt.Errorf("%s: %w", te.Message(), err)
	}
	return err
}
