package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Zain0205/travelin-chat/internal/daemon"
	"github.com/Zain0205/travelin-chat/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	levelFlag := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{ProfileName: profileName, LogLevel: *levelFlag}),
	)

	app.Run()
}
