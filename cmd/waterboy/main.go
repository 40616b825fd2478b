package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kingrea/waterboy/internal/tui"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, tui.ErrCancelled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
