package main

import "github.com/jsphweid/metalign/cmd"

func main() {
	cmd.Execute()
}
