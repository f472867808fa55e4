package cmd

import (
	"fmt"
	"log"
	"os"
)

// infoLogger wraps informative messages to os.Stdout without cluttering
// expected output in tests.
var infoLogger = log.New(os.Stdout, "", 0)

func wrapFatalln(msg string, err error) {
	if err == nil {
		logFatalln(msg)
		return
	}
	logFatalln(fmt.Errorf("%s: %w", msg, err))
}
