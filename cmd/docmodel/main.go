// Command docmodel queries and bulk-modifies the documents of the models
// defined in a YAML schema.
package main

import "github.com/mesh-intelligence/docmodel/internal/cli"

func main() {
	cli.Execute()
}
