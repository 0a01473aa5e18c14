// Package server implements the MCP (Model Context Protocol) server for document scanning.
//
// This package provides a JSON-RPC 2.0 server that exposes document detection,
// coordinate mapping and perspective rectification through the MCP protocol,
// together with one live scanning session that frames can be streamed into.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// Changes of the live session's stable quad are pushed to the client as
// notifications/message entries with logger "stable_quad".
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get display and raw metadata
//   - image_dimensions: Get width and height
//
// Document Operations:
//   - document_detect: Find the dominant document quad in an image
//   - document_map_quad: Convert a quad between pixel spaces
//   - document_rectify: Perspective-correct a quad into an upright image
//   - document_overlay: Draw a quad or the stable quad onto an image
//
// Live Session:
//   - scanner_set_detection: Enable or disable frame analysis
//   - scanner_submit_frame: Feed an image as a capture frame
//   - scanner_stable_quad: Read the stable quad, state and counters
//
// # Pixel Spaces
//
// Quads carry no implicit coordinate system. Tools that accept a space take
// {"kind", "width", "height"} where kind is one of frame, preview, photo,
// display or edit. Images loaded from disk are in display space (after EXIF
// orientation) unless raw is set, which selects photo space.
//
// # Image Caching
//
// The server maintains an in-memory cache of oriented images keyed by path
// for the lifetime of the process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// A frame in which no document is found is not an error; the live session
// simply holds or clears its stable quad.
//
// # Usage
//
//	cfg, _ := config.Load("")
//	srv, err := server.New(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
