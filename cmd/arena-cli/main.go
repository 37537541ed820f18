package main

import "github.com/nfrund/hexarena/cmd/arena-cli/cmd"

func main() {
	cmd.Execute()
}
