// Copyright (c) Sony Research Inc. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/SonyResearch/metavision-driver/pkg/client"
)

func main() {
	mvctl := client.NewMvctlCommand()

	if err := mvctl.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
