package crawler

import "strings"

// ResourceType categorizes an outgoing request the way rendering engines
// report it. Values are lowercase; MapResourceType normalizes.
type ResourceType string

// Resource types the filter knows about.
const (
	ResourceDocument   ResourceType = "document"
	ResourceScript     ResourceType = "script"
	ResourceImage      ResourceType = "image"
	ResourceStylesheet ResourceType = "stylesheet"
	ResourceFont       ResourceType = "font"
	ResourceMedia      ResourceType = "media"
	ResourceXHR        ResourceType = "xhr"
	ResourceFetch      ResourceType = "fetch"
)

// MapResourceType normalizes an engine-reported type string.
func MapResourceType(raw string) ResourceType {
	return ResourceType(strings.ToLower(raw))
}

// ResourceFilter decides, independently per request, whether an outgoing
// resource request is allowed through or aborted.
type ResourceFilter struct {
	blocked map[ResourceType]struct{}
}

// NewResourceFilter blocks exactly the given types.
func NewResourceFilter(blocked ...ResourceType) *ResourceFilter {
	m := make(map[ResourceType]struct{}, len(blocked))
	for _, t := range blocked {
		m[t] = struct{}{}
	}
	return &ResourceFilter{blocked: m}
}

// DefaultResourceFilter blocks the heavyweight types a text extraction
// never needs: images, stylesheets, fonts and media.
func DefaultResourceFilter() *ResourceFilter {
	return NewResourceFilter(ResourceImage, ResourceStylesheet, ResourceFont, ResourceMedia)
}

// Allow reports whether a request of the given type may proceed.
func (f *ResourceFilter) Allow(t ResourceType) bool {
	if f == nil {
		return true
	}
	_, blocked := f.blocked[t]
	return !blocked
}
