// Command 302ai-custom-mcp exposes the 302.AI custom tool API as an MCP
// server over stdio, SSE, Streamable HTTP, or a stateless REST endpoint.
package main

func main() {
	Execute()
}
