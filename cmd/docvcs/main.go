// docvcs command line and gRPC server.
// Run "docvcs serve" for the server, any other command for the client.
package main

import (
	"os"

	"github.com/nainya/docvcs/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
