package main

import "github.com/openhil/dutkit/cmd/dutkit/cmd"

func main() {
	cmd.Execute()
}
