// Package main is the entry point for the tokenrank service and CLI.
package main

func main() {
	Execute()
}
