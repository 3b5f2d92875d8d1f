package main

import "github.com/emrlift/emrlift/cmd"

func main() {
	cmd.Execute()
}
