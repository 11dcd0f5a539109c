package main

import "github.com/drgolem/audiocore/cmd"

func main() {
	cmd.Execute()
}
