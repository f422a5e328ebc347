package main

import "github.com/jharding/legistrack/cmd"

func main() {
	cmd.Execute()
}
