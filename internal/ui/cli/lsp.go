package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"phelnav/internal/shared/util"
	"phelnav/internal/ui/lsp"

	"github.com/spf13/cobra"
)

// lspRequestsPerSecond bounds editor requests; bursts cover completion typing.
const (
	lspRequestsPerSecond = 50
	lspRequestBurst      = 20
)

func runLSP(cmd *cobra.Command, opts *globalOptions, version string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, opts, logToFile)
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.session.Watch(ctx); err != nil {
		return err
	}

	srv := lsp.NewServer(os.Stdin, os.Stdout)
	srv.SetLimiter(util.NewLimiter(lspRequestsPerSecond, lspRequestBurst))
	lsp.NewService(rt.session, version).Register(srv)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
