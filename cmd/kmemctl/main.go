// Command kmemctl boots a simulated physical memory, drives the page
// allocator and reports on it.
package main

func main() {
	execute()
}
