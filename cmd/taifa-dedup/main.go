package main

import (
	"os"

	"github.com/drjforrest/taifa-dedup/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
