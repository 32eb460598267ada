package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{
		Use:   "counsel",
		Short: "Legal research assistant for public-benefits law",
	}

	root.AddCommand(serveCMD(), researchCMD(), migrateCMD())
	_ = root.Execute()
}
