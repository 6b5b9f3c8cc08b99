package main

import "github.com/hilligsoe/localdj/cmd/localdj/cmd"

func main() {
	cmd.Execute()
}
