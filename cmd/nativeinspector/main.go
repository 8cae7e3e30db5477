package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cmdutil "github.com/play-co/NativeInspector/internal/commands"
	"github.com/play-co/NativeInspector/internal/nativeinspector/commands"
	"github.com/play-co/NativeInspector/pkg/logger"
	"github.com/play-co/NativeInspector/pkg/resiliency"
)

const (
	errCommandError = 1
	errSetup        = 2
	errPanic        = 3
)

func main() {
	log := logger.New("nativeinspector").WithName("nativeinspector")
	defer func() {
		panicErr := resiliency.MakePanicError(recover(), log.Logger)
		if panicErr != nil {
			os.Stderr.WriteString(panicErr.Error() + "\n")
			log.Flush()
			os.Exit(errPanic)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := commands.NewRootCommand(log)
	if err != nil {
		cmdutil.ErrorExit(log, err, errSetup)
	}

	if err = root.ExecuteContext(ctx); err != nil {
		stop()
		cmdutil.ErrorExit(log, err, errCommandError)
	}
	log.Flush()
}
