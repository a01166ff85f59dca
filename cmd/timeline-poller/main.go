package main

import (
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-poller/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
