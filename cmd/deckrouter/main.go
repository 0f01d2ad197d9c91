package main

import (
	deckrouter "github.com/vdeck/deckrouter/src"
)

func main() {
	deckrouter.Run()
}
