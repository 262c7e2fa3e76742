package main

import "github.com/Nolus-Protocol/oracle-price-feeder/cmd/oracle-price-feeder/cmd"

func main() {
	cmd.Execute()
}
