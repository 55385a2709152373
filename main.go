package main

import "github.com/kozaktomas/photolink/cmd"

func main() {
	cmd.Execute()
}
