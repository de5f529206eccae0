package main

import "github.com/kozaktomas/customer-recognition/cmd"

func main() {
	cmd.Execute()
}
