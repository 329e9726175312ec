package main

import "github.com/jsherman999/sentryhub/internal/daemon"

func main() { daemon.Main() }
