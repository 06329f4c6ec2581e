package main

import "github.com/audiolibrelab/trackjack/cmd"

func main() {
	cmd.Execute()
}
