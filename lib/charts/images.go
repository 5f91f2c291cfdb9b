package charts

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var imageRegex = regexp.MustCompile(
	`(?i)^(?:[a-z0-9.-]+(?::\d+)?/)?[a-z0-9._\-/]+(:[A-Za-z0-9._-]+)?(@sha256:[a-f0-9]{64})?$`,
)

// LooksLikeImage reports whether s is shaped like a container image reference.
func LooksLikeImage(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, " ") {
		return false
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "_") {
		return false
	}
	return imageRegex.MatchString(s)
}

func walkImages(node any, images map[string]struct{}) {
	switch v := node.(type) {
	case map[string]any:
		for key, value := range v {
			if key == "image" {
				if s, ok := value.(string); ok {
					if LooksLikeImage(s) {
						images[strings.TrimSpace(s)] = struct{}{}
					}
					continue
				}
			}
			walkImages(value, images)
		}
	case []any:
		for _, item := range v {
			walkImages(item, images)
		}
	}
}

// FindNestedImages collects the values of every "image" key in a stream of
// yaml documents. only map values are searched, keys never are. the result is
// sorted and free of duplicates.
func FindNestedImages(manifests []byte) ([]string, error) {
	images := make(map[string]struct{})

	decoder := yaml.NewDecoder(bytes.NewReader(manifests))
	for {
		var doc any
		err := decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		walkImages(doc, images)
	}

	out := make([]string, 0, len(images))
	for image := range images {
		out = append(out, image)
	}
	slices.Sort(out)
	return out, nil
}
