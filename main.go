package main

import "nirsvault/internal/cli"

func main() {
	cli.Execute()
}
