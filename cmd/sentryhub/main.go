package main

import "github.com/jsherman999/sentryhub/internal/cli"

func main() { cli.Main() }
