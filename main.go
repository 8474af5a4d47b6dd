package main

import "github.com/ValentinKolb/imdb/cmd"

func main() {
	cmd.Execute()
}
