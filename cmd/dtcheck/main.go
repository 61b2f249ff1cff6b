// Command dtcheck writes and verifies data-integrity patterns.
package main

func main() {
	execute()
}
