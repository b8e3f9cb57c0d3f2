package main

import (
	"context"
	"os"
	"syscall"

	"github.com/illarion/fincrypt/cmd"
	"github.com/illarion/fincrypt/internal/secmem"
)

func main() {
	// Tear down open sessions before memguard wipes its buffers and exits.
	secmem.CatchSignal(func(os.Signal) { cmd.Abort() }, os.Interrupt, syscall.SIGTERM)

	code := cmd.Execute(context.Background())
	secmem.Purge()
	os.Exit(code)
}
