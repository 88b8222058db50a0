package main

import (
	"github.com/Paintersrp/drainexit/internal/cli"
	"github.com/Paintersrp/drainexit/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
