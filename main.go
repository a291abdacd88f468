package main

import "github.com/mselser95/settlement-engine/cmd"

func main() {
	cmd.Execute()
}
