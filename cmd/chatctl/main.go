package main

import "geminichat/cmd/chatctl/command"

func main() {
	command.Execute()
}
