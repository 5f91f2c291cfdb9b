package main

import (
	"kubecompat/cmd/kubecompat/commands"
	"kubecompat/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
