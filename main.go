package main

import "bookshare-backend/internal/cli"

func main() {
	cli.Execute()
}
