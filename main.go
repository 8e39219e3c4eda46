package main

import "departureboard/cmd"

func main() {
	cmd.Execute()
}
