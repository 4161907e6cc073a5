// main.go
package main

import (
	"github.com/xkilldash9x/pagedriver/cmd"
)

func main() {
	cmd.Execute()
}
