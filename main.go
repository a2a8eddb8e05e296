package main

import "github.com/njyeung/lipsync/cmd"

func main() {
	cmd.Execute()
}
