package platform

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"jordanella.com/regioncap/internal/geometry"
)

var ErrWindowNotFound = errors.New("window not found")

// Window is a top-level window that can be scrolled
type Window struct {
	Handle uintptr
	Title  string
	Bounds geometry.PhysicalRect
}

// FindWindow returns the largest visible window whose title contains
// title, ignoring case
func FindWindow(title string) (Window, error) {
	all, err := listWindows()
	if err != nil {
		return Window{}, err
	}

	matches := matchWindows(all, title)
	if len(matches) == 0 {
		return Window{}, fmt.Errorf("%w: %q", ErrWindowNotFound, title)
	}
	return matches[0], nil
}

// matchWindows keeps windows with a non-empty area whose title contains
// query, largest first
func matchWindows(windows []Window, query string) []Window {
	query = strings.ToLower(strings.TrimSpace(query))

	var out []Window
	for _, w := range windows {
		if w.Bounds.IsEmpty() || w.Title == "" {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(w.Title), query) {
			continue
		}
		out = append(out, w)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Bounds.Area() > out[j].Bounds.Area()
	})
	return out
}
