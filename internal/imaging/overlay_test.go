package imaging

import (
	"image/color"
	"testing"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
)

func TestNewOverlayRenderer(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"outline", OverlayOutline, false},
		{"", OverlayOutline, false},
		{"corners", OverlayCorners, false},
		{"none", OverlayNone, false},
		{"sparkles", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewOverlayRenderer(tt.name, "#FF0000", 2)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for unknown strategy")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOverlayRenderer failed: %v", err)
			}
			if r.Name() != tt.want {
				t.Errorf("Name: got %s, want %s", r.Name(), tt.want)
			}
		})
	}
}

func TestOutlineOverlay_DrawsEdges(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{0, 0, 0, 255})
	r, err := NewOverlayRenderer(OverlayOutline, "#FF0000FF", 1)
	if err != nil {
		t.Fatalf("NewOverlayRenderer failed: %v", err)
	}

	out := RenderOverlayImage(img, geometry.RectQuad(20, 20, 60, 40), r)

	red := color.NRGBA{255, 0, 0, 255}
	for _, p := range [][2]int{{50, 20}, {80, 40}, {50, 60}, {20, 40}} {
		if got := out.NRGBAAt(p[0], p[1]); got != red {
			t.Errorf("outline pixel (%d,%d): got %v, want %v", p[0], p[1], got, red)
		}
	}
	if got := out.NRGBAAt(50, 40); got != (color.NRGBA{0, 0, 0, 255}) {
		t.Errorf("interior pixel should be untouched, got %v", got)
	}
}

func TestCornersOverlay_OutOfBounds(t *testing.T) {
	img := createInMemoryImage(20, 20, color.White)
	r, err := NewOverlayRenderer(OverlayCorners, "", 2)
	if err != nil {
		t.Fatalf("NewOverlayRenderer failed: %v", err)
	}

	// Corners outside the image must be clipped, not panic
	out := RenderOverlayImage(img, geometry.RectQuad(-10, -10, 100, 100), r)
	if out.Bounds().Dx() != 20 {
		t.Errorf("width: got %d, want 20", out.Bounds().Dx())
	}
}

func TestNoOverlay_LeavesImage(t *testing.T) {
	img := createPatternImage(10, 10)
	r, _ := NewOverlayRenderer(OverlayNone, "", 0)

	out := RenderOverlayImage(img, geometry.RectQuad(0, 0, 9, 9), r)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			want := color.NRGBAModel.Convert(img.At(x, y))
			if got := out.At(x, y); got != want {
				t.Fatalf("pixel (%d,%d) changed: got %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		input   string
		want    color.NRGBA
		wantErr bool
	}{
		{"#FF0000", color.NRGBA{255, 0, 0, 255}, false},
		{"00ff00", color.NRGBA{0, 255, 0, 255}, false},
		{"#0000FF80", color.NRGBA{0, 0, 255, 128}, false},
		{"", color.NRGBA{}, true},
		{"#FFF", color.NRGBA{}, true},
		{"#GGGGGG", color.NRGBA{}, true},
		{"#FF0000ZZ", color.NRGBA{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseHexColor(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHexColor(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseHexColor(%q): got %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
