package main

import (
	"context"
	"os"

	"github.com/landingbeacon/landingbeacon-go/internal/cli"
)

func main() {
	r := &cli.Runner{Stdout: os.Stdout, Stderr: os.Stderr}
	os.Exit(r.Run(context.Background(), os.Args[1:]))
}
