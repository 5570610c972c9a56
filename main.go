package main

import (
	"github.com/depwatch/timemachine/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	dirty   = "unknown"
)

func main() {
	cmd.SetVersionInfo(func() (string, string, string, bool) {
		return version, commit, date, dirty == "true"
	})
	cmd.Execute()
}
