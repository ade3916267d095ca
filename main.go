package main

import "github.com/wysstartgo/anycode/cmd"

func main() {
	cmd.Execute()
}
