package main

import "subtitle-index/cmd/subindex"

func main() {
	subindex.Execute()
}
