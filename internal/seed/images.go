package seed

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// ImageSubdir is where placeholder images live under the images directory.
const ImageSubdir = "mock_ct"

const placeholderCount = 5

const placeholderSVG = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="1200" height="800" viewBox="0 0 1200 800">
  <defs>
    <radialGradient id="ct_bg" cx="50%" cy="50%" r="60%">
      <stop offset="0%" stop-color="#7a8088"/>
      <stop offset="45%" stop-color="#4d545d"/>
      <stop offset="100%" stop-color="#1e242a"/>
    </radialGradient>
  </defs>
  <rect width="1200" height="800" fill="#e7ebe8"/>
  <rect x="70" y="90" width="1060" height="620" rx="28" fill="#d2dad6"/>
  <g transform="translate(600 400)">
    <circle r="300" fill="url(#ct_bg)"/>
    <circle r="270" fill="#2b3037"/>
    <ellipse cx="-105" cy="-8" rx="120" ry="175" fill="#1c2025"/>
    <ellipse cx="105" cy="-8" rx="120" ry="175" fill="#1c2025"/>
    <ellipse cx="0" cy="85" rx="45" ry="80" fill="#262b31"/>
    <circle cx="-60" cy="-45" r="26" fill="#6b737c"/>
    <circle cx="75" cy="5" r="20" fill="#707880"/>
    <circle cx="20" cy="-95" r="14" fill="#616970"/>
  </g>
  <text x="600" y="720" font-family="Arial, sans-serif" font-size="28" fill="#7a838b" text-anchor="middle">Simulated CT preview</text>
</svg>
`

// PlaceholderPaths returns the stored file paths of the placeholder images,
// relative to the images directory.
func PlaceholderPaths() []string {
	paths := make([]string, placeholderCount)
	for i := range paths {
		paths[i] = path.Join(ImageSubdir, fmt.Sprintf("ct_placeholder_%d.svg", i+1))
	}
	return paths
}

// WritePlaceholders writes the placeholder images under imagesDir and
// returns their stored paths.
func WritePlaceholders(imagesDir string) ([]string, error) {
	if err := os.MkdirAll(filepath.Join(imagesDir, ImageSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	paths := PlaceholderPaths()
	for _, p := range paths {
		if err := os.WriteFile(filepath.Join(imagesDir, filepath.FromSlash(p)), []byte(placeholderSVG), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", p, err)
		}
	}
	return paths, nil
}
