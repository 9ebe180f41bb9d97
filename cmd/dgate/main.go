package main

import "github.com/ValentinKolb/dGate/cmd"

func main() {
	cmd.Execute()
}
