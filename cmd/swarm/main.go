// Command swarm decomposes notes into task chains and runs them through
// agent CLIs in directory sandboxes.
package main

func main() {
	Execute()
}
