package main

import "ani-tui/cmd"

func main() {
	cmd.Execute()
}
