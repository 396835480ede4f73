package main

import (
	"github.com/findy-network/findy-wallet/cmd"
	"github.com/golang/glog"
)

func main() {
	defer glog.Flush()

	cmd.Execute()
}
