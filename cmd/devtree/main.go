package main

import (
	"context"
	"fmt"
	"os"

	"devtree/cmd/internal/cli"
)

func main() {
	if err := cli.NewRoot().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "devtree:", err)
		os.Exit(1)
	}
}
