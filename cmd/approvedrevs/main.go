// approvedrevs manages approved revisions of wiki pages and files.
package main

import "github.com/ppiankov/approvedrevs/internal/cli"

func main() {
	cli.Execute()
}
