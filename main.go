package main

import "github.com/jackchuma/tokenbank/internal/command"

func main() {
	command.Execute()
}
