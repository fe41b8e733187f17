package main

import "github.com/mvp-joe/leantrace/internal/cli"

func main() {
	cli.Execute()
}
