package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

func quadProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"minItems":    4,
		"maxItems":    4,
		"description": description,
		"items": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"x": map[string]interface{}{"type": "number"},
				"y": map[string]interface{}{"type": "number"},
			},
			"required": []string{"x", "y"},
		},
	}
}

func spaceProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"kind": map[string]interface{}{
				"type": "string",
				"enum": []string{"frame", "preview", "photo", "display", "edit"},
			},
			"width":  map[string]interface{}{"type": "number"},
			"height": map[string]interface{}{"type": "number"},
		},
		"required": []string{"kind", "width", "height"},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its display and raw dimensions, format and size. A rotated flag reports a 90° EXIF orientation.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file after EXIF orientation.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Document Operations
		{
			Name:        "document_detect",
			Description: "Find the dominant document-like quadrilateral in an image. Returns its corners ordered top-left, top-right, bottom-right, bottom-left in the image's pixel space.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"raw": map[string]interface{}{
						"type":        "boolean",
						"description": "Analyse the stored pixel grid without EXIF orientation (default false)",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "document_map_quad",
			Description: "Convert a quad between pixel spaces: capture frame, on-screen preview, stored photo, EXIF-oriented display, or letterboxed edit view.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"quad": quadProperty("Four corner points in the source space"),
					"from": spaceProperty("Source pixel space"),
					"to":   spaceProperty("Target pixel space"),
					"fit": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"contain", "cover"},
						"description": "How the frame is fitted into a preview (default from configuration)",
					},
				},
				"required": []string{"quad", "from", "to"},
			},
		},
		{
			Name:        "document_rectify",
			Description: "Perspective-correct a document region into an upright rectangular image. Without a quad the document is detected first. Returns base64 image data unless output_path is given.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"raw": map[string]interface{}{
						"type":        "boolean",
						"description": "Use the stored pixel grid without EXIF orientation (default false)",
					},
					"quad":       quadProperty("Optional corner points of the document"),
					"quad_space": spaceProperty("Pixel space of quad when it was not taken from this image (e.g. an edit view)"),
					"format": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"jpeg", "png", "gif", "tiff", "bmp"},
						"description": "Output encoding (default from configuration)",
					},
					"quality": map[string]interface{}{
						"type":        "integer",
						"description": "JPEG quality 1-100",
					},
					"rotation": map[string]interface{}{
						"type":        "integer",
						"enum":        []int{0, 90, 180, 270},
						"description": "Clockwise rotation applied after rectification",
						"default":     0,
					},
					"border_color": map[string]interface{}{
						"type":        "string",
						"description": "Fill for samples outside the source, as #RRGGBB (default white)",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Write the result here; the extension is replaced to match the format",
					},
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Also return base64 data when output_path is set",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "document_overlay",
			Description: "Draw a document quad onto an image and return it as base64-encoded PNG. Without a quad the document is detected first; with stable=true the live session's stable quad is drawn onto the image as a preview.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"quad": quadProperty("Optional corner points to draw"),
					"stable": map[string]interface{}{
						"type":        "boolean",
						"description": "Draw the live session's stable quad instead",
					},
					"strategy": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"outline", "corners", "none"},
						"description": "Overlay style (default from configuration)",
					},
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Line color as #RRGGBB",
					},
					"thickness": map[string]interface{}{
						"type":        "integer",
						"description": "Line thickness in pixels",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Write the PNG here instead of returning base64",
					},
				},
				"required": []string{"path"},
			},
		},

		// Live Session
		{
			Name:        "scanner_set_detection",
			Description: "Enable or disable live detection. Disabling discards pending results and clears the stable quad.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"enabled": map[string]interface{}{
						"type": "boolean",
					},
				},
				"required": []string{"enabled"},
			},
		},
		{
			Name:        "scanner_submit_frame",
			Description: "Feed an image file to the live session as a capture frame. Frames are dropped while one is in flight or faster than the configured rate.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"wait": map[string]interface{}{
						"type":        "boolean",
						"description": "Wait for the frame's result to reach the stabilizer",
					},
					"timeout_ms": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum wait in milliseconds (default 2000)",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "scanner_stable_quad",
			Description: "Get the live session's stable quad, stabilizer state and frame counters.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
