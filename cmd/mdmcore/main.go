// Command mdmcore runs the entity-resolution pipeline: ingest source
// records, match and cluster them into golden records, and query or
// roll back the resulting lineage.
package main

func main() {
	Execute()
}
