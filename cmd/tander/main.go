package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/account"
	"github.com/tanderapp/tander/internal/app"
	"github.com/tanderapp/tander/internal/tui"
)

func main() {
	accountFlag := flag.String("account", "", "account name (overrides config default)")
	apiFlag := flag.String("api", "", "REST base URL (overrides config)")
	wsFlag := flag.String("ws", "", "push WebSocket URL (overrides config)")
	flag.Parse()

	accountName := account.Resolve(*accountFlag)
	if err := account.ValidateName(accountName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var ui *tui.App
	fxApp := fx.New(
		app.Module(app.Params{
			AccountName: accountName,
			APIURL:      *apiFlag,
			WSURL:       *wsFlag,
		}),
		fx.Provide(tui.NewApp),
		fx.Populate(&ui),
		// The terminal belongs to the UI; fx lifecycle events go to the
		// account log file with everything else.
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	runErr := ui.Run()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancelStop()
	if err := fxApp.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
