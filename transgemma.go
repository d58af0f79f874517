package main

import (
	"github.com/godii/transgemma/client/cmd"
)

func main() {
	cmd.Execute()
}
